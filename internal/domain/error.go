package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrShuttingDown       = errors.New("service is shutting down")
	ErrPayloadMissing     = errors.New("task payload missing or unparsable")
	ErrRetriesExhausted   = errors.New("retry budget exhausted")
	ErrCallbackNotSet     = errors.New("callback url or payload not configured")
	ErrStorageUnavailable = errors.New("no storage backend available")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
