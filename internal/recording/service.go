package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"go.uber.org/zap"
)

const statusCompleted = "completed"

var (
	ErrNotFound       = errors.New("recording not found")
	ErrMissingCallSid = errors.New("recording callback without CallSid")
)

// Recording is the latest known state of a call recording, keyed by call sid.
type Recording struct {
	CallSid      string    `json:"callSid"`
	RecordingSid string    `json:"recordingSid,omitempty"`
	URL          string    `json:"recordingUrl"`
	Duration     string    `json:"recordingDuration,omitempty"`
	Status       string    `json:"recordingStatus"`
	ArchiveURL   string    `json:"archiveUrl,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Fetcher downloads a recording from the provider.
type Fetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) (*bytes.Buffer, error)
}

type Archiver interface {
	Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error)
}

type RecordingService struct {
	Recordings *store.Collection[Recording]
	Fetcher    Fetcher
	Archiver   Archiver
}

// NewService returns a service that archives completed recordings when archiver is non-nil.
func NewService(fleetStore *store.Store, fetcher Fetcher, archiver Archiver) *RecordingService {
	return &RecordingService{
		Recordings: store.NewCollection(fleetStore, store.RecordingsCollection, func(r Recording) string {
			return r.CallSid
		}),
		Fetcher:  fetcher,
		Archiver: archiver,
	}
}

func (recordingService *RecordingService) List() []Recording {
	return recordingService.Recordings.GetAll()
}

func (recordingService *RecordingService) GetByCallSid(callSid string) (Recording, error) {
	found, err := recordingService.Recordings.GetByID(callSid)
	if errors.Is(err, store.ErrNotFound) {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, callSid)
	}

	return found, err
}

// Upsert stores the callback state for the call. A second callback for the same
// call overwrites the first instead of adding a record.
func (recordingService *RecordingService) Upsert(ctx context.Context, incoming Recording) (Recording, error) {
	if incoming.CallSid == "" {
		return Recording{}, ErrMissingCallSid
	}

	if incoming.Timestamp.IsZero() {
		incoming.Timestamp = time.Now()
	}

	saved, inserted, err := recordingService.Recordings.Upsert(ctx, incoming.CallSid,
		func() Recording { return Recording{CallSid: incoming.CallSid} },
		func(r *Recording) error {
			archiveURL := r.ArchiveURL
			*r = incoming

			if r.ArchiveURL == "" {
				r.ArchiveURL = archiveURL
			}

			return nil
		},
	)
	if err != nil {
		return Recording{}, err
	}

	logging.Logger.Info("recording stored",
		zap.String("call_sid", saved.CallSid),
		zap.String("status", saved.Status),
		zap.Bool("inserted", inserted),
	)

	if recordingService.Archiver == nil || saved.Status != statusCompleted || saved.URL == "" || saved.ArchiveURL != "" {
		return saved, nil
	}

	return recordingService.archive(ctx, saved), nil
}

// archive copies the recording into object storage. Failures are logged and the
// record is returned unchanged.
func (recordingService *RecordingService) archive(ctx context.Context, saved Recording) Recording {
	buffer, err := recordingService.Fetcher.FetchRecording(ctx, saved.URL)
	if err != nil {
		logging.Logger.Error("failed to fetch recording for archive",
			zap.String("call_sid", saved.CallSid),
			zap.String("error", err.Error()),
		)

		return saved
	}

	archiveURL, err := recordingService.Archiver.Upload(ctx, buffer, objectKey(saved))
	if err != nil {
		logging.Logger.Error("failed to archive recording",
			zap.String("call_sid", saved.CallSid),
			zap.String("error", err.Error()),
		)

		return saved
	}

	archived, err := recordingService.Recordings.Update(ctx, saved.CallSid, func(r *Recording) error {
		r.ArchiveURL = archiveURL
		return nil
	})
	if err != nil {
		logging.Logger.Error("failed to store archive url",
			zap.String("call_sid", saved.CallSid),
			zap.String("error", err.Error()),
		)

		return saved
	}

	return archived
}

func objectKey(r Recording) string {
	name := r.RecordingSid
	if name == "" {
		name = r.CallSid
	}

	return r.CallSid + "/" + name + ".wav"
}
