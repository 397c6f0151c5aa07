package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	prometheusFleet "git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Kinds of provider callbacks. They double as dead-letter kinds.
const (
	KindStatus             = "status"
	KindRecording          = "recording"
	KindTranscriptionEvent = "transcription_event"
	KindTranscription      = "transcription"
)

var (
	ErrUnknownKind     = errors.New("unknown webhook kind")
	ErrMissingProvider = errors.New("status callback without CallSid or MessageSid")
)

// Payload is a flattened provider form post.
type Payload = map[string]string

type WebhookHandler struct {
	CampaignService   *campaign.CampaignService
	RecordingService  *recording.RecordingService
	TranscriptService *transcript.TranscriptService
	Summarizer        summarizer.Summarizer
}

func NewHandler(
	campaignService *campaign.CampaignService,
	recordingService *recording.RecordingService,
	transcriptService *transcript.TranscriptService,
	summary summarizer.Summarizer,
) *WebhookHandler {
	return &WebhookHandler{
		CampaignService:   campaignService,
		RecordingService:  recordingService,
		TranscriptService: transcriptService,
		Summarizer:        summary,
	}
}

// Process routes a callback payload to its handler.
func (webhookHandler *WebhookHandler) Process(ctx context.Context, kind string, payload Payload) error {
	var err error

	switch kind {
	case KindStatus:
		err = webhookHandler.handleStatusPayload(ctx, payload)
	case KindRecording:
		err = webhookHandler.HandleRecording(ctx, payload)
	case KindTranscriptionEvent:
		err = webhookHandler.HandleTranscriptionEvent(ctx, payload)
	case KindTranscription:
		err = webhookHandler.HandleTranscription(ctx, payload)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	prometheusFleet.WebhooksTotal.WithLabelValues(kind, outcome).Inc()

	return err
}

func (webhookHandler *WebhookHandler) handleStatusPayload(ctx context.Context, payload Payload) error {
	providerID, status := payload["CallSid"], payload["CallStatus"]
	if payload["MessageSid"] != "" {
		providerID, status = payload["MessageSid"], payload["MessageStatus"]
	}

	if providerID == "" {
		return ErrMissingProvider
	}

	return webhookHandler.HandleStatus(ctx, providerID, status)
}

// HandleStatus records a delivery status on the log entry that carries providerID
// and completes the campaign once every target has settled. Unknown ids are ignored.
func (webhookHandler *WebhookHandler) HandleStatus(ctx context.Context, providerID, status string) error {
	owner, found := webhookHandler.findByProviderID(providerID)
	if !found {
		logging.Logger.Info("status callback for unknown provider id", zap.String("provider_id", providerID))
		return nil
	}

	updated, err := webhookHandler.CampaignService.Campaigns.Update(ctx, owner.ID, func(c *campaign.Campaign) error {
		idx := c.LogIndex(providerID)
		if idx < 0 {
			return nil
		}

		now := time.Now()
		c.Logs[idx].Status = status
		c.Logs[idx].UpdatedAt = now

		for resultIdx := range c.Results {
			if c.Results[resultIdx].ProviderID == providerID {
				c.Results[resultIdx].Status = status
			}
		}

		if c.Status == campaign.StatusOngoing && c.AllTargetsSettled() {
			return c.Transition(campaign.StatusCompleted, now)
		}

		return nil
	})
	if err != nil {
		return err
	}

	logging.Logger.Info("delivery status updated",
		zap.String("campaign_id", updated.ID),
		zap.String("provider_id", providerID),
		zap.String("status", status),
		zap.String("campaign_status", string(updated.Status)),
	)

	return nil
}

func (webhookHandler *WebhookHandler) HandleRecording(ctx context.Context, payload Payload) error {
	_, err := webhookHandler.RecordingService.Upsert(ctx, recording.Recording{
		CallSid:      payload["CallSid"],
		RecordingSid: payload["RecordingSid"],
		URL:          payload["RecordingUrl"],
		Duration:     payload["RecordingDuration"],
		Status:       payload["RecordingStatus"],
	})

	return err
}

func (webhookHandler *WebhookHandler) HandleTranscriptionEvent(ctx context.Context, payload Payload) error {
	_, err := webhookHandler.TranscriptService.ApplyEvent(ctx, transcript.Incoming{
		CallSid:          payload["CallSid"],
		TranscriptionSid: payload["TranscriptionSid"],
		Type:             payload["TranscriptionEvent"],
		SequenceID:       payload["SequenceId"],
		Text:             transcriptionText(payload),
		Error:            firstNonEmpty(payload["TranscriptionError"], payload["Error"]),
		Timestamp:        parseTimestamp(payload["Timestamp"]),
	})

	return err
}

// HandleTranscription completes the transcript of a recorded answer, summarizes it
// and stores both on the campaign log entry for the call.
func (webhookHandler *WebhookHandler) HandleTranscription(ctx context.Context, payload Payload) error {
	callSid := payload["CallSid"]
	text := strings.TrimSpace(payload["TranscriptionText"])
	transcriptionStatus := payload["TranscriptionStatus"]

	var summary *summarizer.Summary

	if text != "" {
		summarized := webhookHandler.Summarizer.Summarize(ctx, text)
		summary = &summarized
	}

	_, err := webhookHandler.TranscriptService.Complete(ctx, callSid, text, summary)
	if err != nil {
		return err
	}

	owner, found := webhookHandler.findByProviderID(callSid)
	if !found {
		logging.Logger.Info("transcription for call outside any campaign", zap.String("call_sid", callSid))
		return nil
	}

	_, err = webhookHandler.CampaignService.Campaigns.Update(ctx, owner.ID, func(c *campaign.Campaign) error {
		idx := c.LogIndex(callSid)
		if idx < 0 {
			return nil
		}

		c.Logs[idx].Transcription = text
		c.Logs[idx].TranscriptionStatus = transcriptionStatus
		c.Logs[idx].Summary = summary
		c.Logs[idx].UpdatedAt = time.Now()

		return nil
	})
	if err != nil {
		return err
	}

	logging.Logger.Info("transcription stored on communication log",
		zap.String("campaign_id", owner.ID),
		zap.String("call_sid", callSid),
		zap.Bool("summarized", summary != nil),
	)

	return nil
}

// findByProviderID scans every campaign for a log entry with providerID.
func (webhookHandler *WebhookHandler) findByProviderID(providerID string) (campaign.Campaign, bool) {
	if providerID == "" {
		return campaign.Campaign{}, false
	}

	owners := webhookHandler.CampaignService.Campaigns.Find(func(c campaign.Campaign) bool {
		return c.LogIndex(providerID) >= 0
	})
	if len(owners) == 0 {
		return campaign.Campaign{}, false
	}

	return owners[0], true
}

type transcriptionData struct {
	Transcript string `json:"transcript"`
}

func transcriptionText(payload Payload) string {
	if payload["TranscriptionText"] != "" {
		return payload["TranscriptionText"]
	}

	raw := payload["TranscriptionData"]
	if raw == "" {
		return ""
	}

	var data transcriptionData

	err := json.Unmarshal([]byte(raw), &data)
	if err != nil {
		logging.Logger.Warn("invalid TranscriptionData", zap.String("error", err.Error()))
		return ""
	}

	return data.Transcript
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return parsed
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return time.UnixMilli(millis)
	}

	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
