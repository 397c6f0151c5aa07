package campaign

import (
	"context"
	"time"
)

const (
	EventCreated       = "campaign.created"
	EventStarted       = "campaign.started"
	EventRecipient     = "campaign.recipient"
	EventFinished      = "campaign.finished"
	EventStatusChanged = "campaign.status_changed"
)

type Event struct {
	Type       string    `json:"type"`
	CampaignID string    `json:"campaign_id"`
	Status     Status    `json:"status,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Success    bool      `json:"success,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher fans campaign lifecycle events out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error {
	return nil
}
