package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	smsTemplateMaxChars   = 160
	voiceTemplateMaxChars = 500
)

type CreateRequest struct {
	Name            string   `json:"name"              validate:"required,max=100"`
	Channel         Channel  `json:"type"              validate:"required,oneof=voice sms"`
	Template        string   `json:"template_content"  validate:"required"`
	TargetDriverIDs []string `json:"target_driver_ids" validate:"required,min=1,dive,required"`
}

// UpdateRequest edits a campaign. Content fields may change only while it is scheduled.
type UpdateRequest struct {
	ID              string   `json:"id"                          validate:"required"`
	Status          Status   `json:"status,omitempty"            validate:"omitempty,oneof=scheduled ongoing completed failed"`
	Name            *string  `json:"name,omitempty"              validate:"omitempty,min=1,max=100"`
	Template        *string  `json:"template_content,omitempty"  validate:"omitempty,min=1"`
	TargetDriverIDs []string `json:"target_driver_ids,omitempty" validate:"omitempty,dive,required"`
}

type CampaignService struct {
	Campaigns *store.Collection[Campaign]
	Events    EventPublisher
	validate  *validator.Validate
}

func NewService(fleetStore *store.Store, events EventPublisher) *CampaignService {
	if events == nil {
		events = NopPublisher{}
	}

	return &CampaignService{
		Campaigns: store.NewCollection(fleetStore, store.CampaignsCollection, func(c Campaign) string {
			return c.ID
		}),
		Events:   events,
		validate: validator.New(),
	}
}

func (campaignService *CampaignService) List() []Campaign {
	return campaignService.Campaigns.GetAll()
}

func (campaignService *CampaignService) Get(id string) (Campaign, error) {
	found, err := campaignService.Campaigns.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return Campaign{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return found, err
}

// Create validates req and stores a new scheduled campaign.
func (campaignService *CampaignService) Create(ctx context.Context, req CreateRequest) (Campaign, error) {
	req.Name = strings.TrimSpace(req.Name)

	err := campaignService.validateCreate(req)
	if err != nil {
		return Campaign{}, err
	}

	now := time.Now()
	created := Campaign{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Channel:         req.Channel,
		Template:        req.Template,
		TargetDriverIDs: req.TargetDriverIDs,
		Status:          StatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
		Results:         []Result{},
		Logs:            []LogEntry{},
	}

	err = campaignService.Campaigns.Append(ctx, created)
	if err != nil {
		return Campaign{}, err
	}

	logging.Logger.Info("campaign created",
		zap.String("campaign_id", created.ID),
		zap.String("channel", string(created.Channel)),
		zap.Int("targets", len(created.TargetDriverIDs)),
	)

	campaignService.publish(ctx, Event{Type: EventCreated, CampaignID: created.ID, Status: created.Status})

	return created, nil
}

func (campaignService *CampaignService) validateCreate(req CreateRequest) error {
	if len(req.TargetDriverIDs) == 0 {
		return fmt.Errorf("%w: at least one target driver is required", ErrValidation)
	}

	err := campaignService.validate.Struct(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return validateTemplate(req.Channel, req.Template)
}

func validateTemplate(channel Channel, template string) error {
	limit := voiceTemplateMaxChars
	if channel == ChannelSMS {
		limit = smsTemplateMaxChars
	}

	length := utf8.RuneCountInString(template)
	if length > limit {
		return fmt.Errorf("%w: %s template is %d characters, limit is %d", ErrValidation, channel, length, limit)
	}

	return nil
}

// Update applies req atomically. A status change must move forward.
func (campaignService *CampaignService) Update(ctx context.Context, req UpdateRequest) (Campaign, error) {
	err := campaignService.validate.Struct(req)
	if err != nil {
		return Campaign{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	updated, err := campaignService.Campaigns.Update(ctx, req.ID, func(c *Campaign) error {
		editsContent := req.Name != nil || req.Template != nil || req.TargetDriverIDs != nil
		if editsContent && c.Status != StatusScheduled {
			return fmt.Errorf("%w: only scheduled campaigns can be edited", ErrAlreadyStarted)
		}

		if req.Name != nil {
			c.Name = strings.TrimSpace(*req.Name)
		}

		if req.Template != nil {
			err := validateTemplate(c.Channel, *req.Template)
			if err != nil {
				return err
			}

			c.Template = *req.Template
		}

		if req.TargetDriverIDs != nil {
			if len(req.TargetDriverIDs) == 0 {
				return fmt.Errorf("%w: at least one target driver is required", ErrValidation)
			}

			c.TargetDriverIDs = req.TargetDriverIDs
		}

		c.UpdatedAt = time.Now()

		if req.Status != "" && req.Status != c.Status {
			return c.Transition(req.Status, c.UpdatedAt)
		}

		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Campaign{}, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
	}

	if err != nil {
		return Campaign{}, err
	}

	if req.Status != "" {
		campaignService.publish(ctx, Event{Type: EventStatusChanged, CampaignID: updated.ID, Status: updated.Status})
	}

	return updated, nil
}

// UpdateStatus moves the campaign to status, recording errMsg when non-empty.
func (campaignService *CampaignService) UpdateStatus(
	ctx context.Context,
	id string,
	status Status,
	errMsg string,
) (Campaign, error) {
	updated, err := campaignService.Campaigns.Update(ctx, id, func(c *Campaign) error {
		err := c.Transition(status, time.Now())
		if err != nil {
			return err
		}

		if errMsg != "" {
			c.Error = errMsg
		}

		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Campaign{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return updated, err
}

func (campaignService *CampaignService) publish(ctx context.Context, event Event) {
	event.OccurredAt = time.Now()

	err := campaignService.Events.Publish(ctx, event)
	if err != nil {
		logging.Logger.Warn("failed to publish campaign event",
			zap.String("campaign_id", event.CampaignID),
			zap.String("event", event.Type),
			zap.String("error", err.Error()),
		)
	}
}
