package credential

import (
	"time"
)

// Status describes the health of a credential entry.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// DefaultFailLimit is the number of consecutive failures after which an
// entry is demoted to failed. Untuned constant carried over from operations;
// override via PoolOptions.
const DefaultFailLimit = 5

// Entry is one captured account credential plus its health bookkeeping.
// Entries are owned by a Pool and mutated only through pool operations.
type Entry struct {
	ID        string            `json:"id"`
	Payload   map[string]string `json:"payload"`
	Status    Status            `json:"status"`
	FailCount int               `json:"fail_count"`
	LastUsed  *time.Time        `json:"last_used,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	AddedAt   time.Time         `json:"added_at"`
}

// EntrySummary is the redacted projection of an entry exposed by health and
// CLI surfaces. It never carries the secret payload.
type EntrySummary struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	FailCount   int        `json:"fail_count"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	AddedAt     time.Time  `json:"added_at"`
	ExpiresSoon bool       `json:"expires_soon,omitempty"`
}

// PoolSummary aggregates pool health for the /health endpoint.
type PoolSummary struct {
	Provider string         `json:"provider"`
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Expired  int            `json:"expired"`
	Failed   int            `json:"failed"`
	Strategy Strategy       `json:"strategy"`
	Entries  []EntrySummary `json:"entries"`
}
