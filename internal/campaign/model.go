package campaign

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
)

type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Delivery statuses after which the provider sends no further updates for a recipient.
var terminalDeliveryStatuses = []string{
	"completed", "failed", "busy", "no-answer", "canceled", "delivered", "undelivered",
}

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("campaign not found")
	ErrNoTargets         = errors.New("campaign has no resolvable target drivers")
	ErrAlreadyStarted    = errors.New("campaign was already started")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusOngoing, StatusFailed},
	StatusOngoing:   {StatusCompleted, StatusFailed},
}

type Campaign struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Channel         Channel    `json:"type"`
	Template        string     `json:"template_content"`
	TargetDriverIDs []string   `json:"target_driver_ids"`
	Status          Status     `json:"status"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Results         []Result   `json:"results"`
	Logs            []LogEntry `json:"communication_logs"`
}

// Result is the outcome of one send attempt to one target driver.
type Result struct {
	DriverID    string    `json:"driver_id"`
	DriverName  string    `json:"driver_name"`
	PhoneNumber string    `json:"phone_number"`
	ProviderID  string    `json:"provider_id,omitempty"`
	Success     bool      `json:"success"`
	Simulated   bool      `json:"simulated"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Attempts    uint      `json:"attempts"`
	SentAt      time.Time `json:"sent_at"`
}

// LogEntry tracks delivery of one message or call as reported by provider webhooks.
type LogEntry struct {
	ID                  string              `json:"id"`
	DriverID            string              `json:"driver_id"`
	Channel             Channel             `json:"type"`
	ProviderID          string              `json:"provider_id,omitempty"`
	Status              string              `json:"status"`
	Body                string              `json:"message_body"`
	Transcription       string              `json:"transcription,omitempty"`
	TranscriptionStatus string              `json:"transcription_status,omitempty"`
	Summary             *summarizer.Summary `json:"processed_response,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (c Campaign) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusFailed
}

// Transition moves the campaign forward, stamping the matching timestamp.
func (c *Campaign) Transition(to Status, at time.Time) error {
	if !slices.Contains(transitions[c.Status], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}

	c.Status = to
	c.UpdatedAt = at

	switch to {
	case StatusOngoing:
		c.StartedAt = &at
	case StatusCompleted, StatusFailed:
		c.CompletedAt = &at
	case StatusScheduled:
	}

	return nil
}

// LogIndex returns the index of the log entry for providerID, or -1.
func (c Campaign) LogIndex(providerID string) int {
	if providerID == "" {
		return -1
	}

	for idx, entry := range c.Logs {
		if entry.ProviderID == providerID {
			return idx
		}
	}

	return -1
}

// AllTargetsSettled reports whether every target has a log entry and every entry
// is in a terminal delivery status.
func (c Campaign) AllTargetsSettled() bool {
	if len(c.Logs) == 0 {
		return false
	}

	logged := make(map[string]bool, len(c.Logs))

	for _, entry := range c.Logs {
		if !IsTerminalDelivery(entry.Status) {
			return false
		}

		logged[entry.DriverID] = true
	}

	for _, driverID := range c.TargetDriverIDs {
		if !logged[driverID] {
			return false
		}
	}

	return true
}

func IsTerminalDelivery(status string) bool {
	return slices.Contains(terminalDeliveryStatuses, status)
}
