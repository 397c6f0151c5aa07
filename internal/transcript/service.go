package transcript

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"go.uber.org/zap"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusContent   Status = "content"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

const (
	EventStarted = "started"
	EventContent = "content"
	EventStopped = "stopped"
	EventError   = "error"
)

var (
	ErrNotFound         = errors.New("transcript not found")
	ErrMissingCallSid   = errors.New("transcription event without CallSid")
	ErrUnknownEventType = errors.New("unknown transcription event")
)

type Event struct {
	Type       string    `json:"type"`
	SequenceID string    `json:"sequenceId,omitempty"`
	Text       string    `json:"text,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Transcript accumulates the realtime transcription of one call.
type Transcript struct {
	CallSid          string              `json:"callSid"`
	TranscriptionSid string              `json:"transcriptionSid,omitempty"`
	Text             string              `json:"text"`
	Status           Status              `json:"status"`
	Error            string              `json:"error,omitempty"`
	Events           []Event             `json:"events"`
	Summary          *summarizer.Summary `json:"summary,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// Incoming is a realtime transcription callback.
type Incoming struct {
	CallSid          string
	TranscriptionSid string
	Type             string
	SequenceID       string
	Text             string
	Error            string
	Timestamp        time.Time
}

type TranscriptService struct {
	Transcripts *store.Collection[Transcript]
}

func NewService(fleetStore *store.Store) *TranscriptService {
	return &TranscriptService{
		Transcripts: store.NewCollection(fleetStore, store.TranscriptsCollection, func(t Transcript) string {
			return t.CallSid
		}),
	}
}

func (transcriptService *TranscriptService) List() []Transcript {
	return transcriptService.Transcripts.GetAll()
}

func (transcriptService *TranscriptService) GetByCallSid(callSid string) (Transcript, error) {
	found, err := transcriptService.Transcripts.GetByID(callSid)
	if errors.Is(err, store.ErrNotFound) {
		return Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, callSid)
	}

	return found, err
}

// NormalizeEventType accepts both "content" and "transcription-content" forms.
func NormalizeEventType(eventType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(eventType)), "transcription-")
}

// ApplyEvent folds one realtime event into the call's transcript. A repeated
// sequence id leaves the transcript unchanged.
func (transcriptService *TranscriptService) ApplyEvent(ctx context.Context, incoming Incoming) (Transcript, error) {
	if incoming.CallSid == "" {
		return Transcript{}, ErrMissingCallSid
	}

	eventType := NormalizeEventType(incoming.Type)
	if !slices.Contains([]string{EventStarted, EventContent, EventStopped, EventError}, eventType) {
		return Transcript{}, fmt.Errorf("%w: %q", ErrUnknownEventType, incoming.Type)
	}

	now := time.Now()
	if incoming.Timestamp.IsZero() {
		incoming.Timestamp = now
	}

	applied, _, err := transcriptService.Transcripts.Upsert(ctx, incoming.CallSid,
		func() Transcript {
			return Transcript{
				CallSid:   incoming.CallSid,
				Status:    StatusStarted,
				Events:    []Event{},
				CreatedAt: now,
			}
		},
		func(t *Transcript) error {
			if incoming.SequenceID != "" && t.hasSequence(incoming.SequenceID) {
				return nil
			}

			t.Events = append(t.Events, Event{
				Type:       eventType,
				SequenceID: incoming.SequenceID,
				Text:       incoming.Text,
				Timestamp:  incoming.Timestamp,
			})
			t.UpdatedAt = now

			if incoming.TranscriptionSid != "" {
				t.TranscriptionSid = incoming.TranscriptionSid
			}

			switch eventType {
			case EventStarted:
				t.Status = StatusStarted
			case EventContent:
				t.Text = joinText(t.Text, incoming.Text)
				t.Status = StatusContent
			case EventStopped:
				t.Status = StatusCompleted
			case EventError:
				t.Status = StatusError
				t.Error = incoming.Error
			}

			return nil
		},
	)
	if err != nil {
		return Transcript{}, err
	}

	logging.Logger.Debug("transcription event applied",
		zap.String("call_sid", incoming.CallSid),
		zap.String("event", eventType),
		zap.String("sequence_id", incoming.SequenceID),
	)

	return applied, nil
}

// Complete records the final text of a recording transcription and marks the
// transcript completed.
func (transcriptService *TranscriptService) Complete(
	ctx context.Context,
	callSid string,
	text string,
	summary *summarizer.Summary,
) (Transcript, error) {
	if callSid == "" {
		return Transcript{}, ErrMissingCallSid
	}

	now := time.Now()

	completed, _, err := transcriptService.Transcripts.Upsert(ctx, callSid,
		func() Transcript {
			return Transcript{CallSid: callSid, Events: []Event{}, CreatedAt: now}
		},
		func(t *Transcript) error {
			if text != "" {
				t.Text = text
			}

			if summary != nil {
				t.Summary = summary
			}

			t.Status = StatusCompleted
			t.UpdatedAt = now

			return nil
		},
	)

	return completed, err
}

func (t Transcript) hasSequence(sequenceID string) bool {
	for _, event := range t.Events {
		if event.SequenceID == sequenceID {
			return true
		}
	}

	return false
}

func joinText(current, next string) string {
	next = strings.TrimSpace(next)

	switch {
	case next == "":
		return current
	case current == "":
		return next
	default:
		return current + " " + next
	}
}
