package model

import (
	"fmt"
	"time"
)

// OutboxEvent journals a write that landed on the fallback store while the
// primary was down, for later replay. The idempotency key is derived from the
// logical operation so a duplicate replay is rejected by the unique
// constraint, not by locking.
type OutboxEvent struct {
	ID             int64
	IdempotencyKey string
	TableName      string
	Operation      string // save | delete
	PrimaryKey     string
	Payload        []byte
	AppliedAt      *time.Time
	RetryCount     int
	LastError      string
	CreatedAt      time.Time
}

// OutboxKey builds the idempotency key for one logical write. Including the
// sequence number distinguishes successive writes to the same row.
func OutboxKey(table, op, pk string, seq int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", table, op, pk, seq)
}
