package deadletter

import (
	"time"
)

// WebhookDeadLetter is a provider callback whose processing failed.
type WebhookDeadLetter struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload"`
	Error       string            `json:"error"`
	Status      string            `json:"status"`
	RetryCount  int               `json:"retry_count"`
	LastRetryAt *time.Time        `json:"last_retry_at,omitempty"`
	ClaimedAt   *time.Time        `json:"claimed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)
