package model

import "time"

type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusDraft  RuleStatus = "draft"
)

// RuleConfig is the per-matter review rule definition. The pipeline reads it
// through the TTL cache; only administrative tooling writes it.
type RuleConfig struct {
	MatterID   string
	Name       string
	Definition string // serialized rule document
	Status     RuleStatus
	UpdatedAt  time.Time
}
