package recording

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	err     error
	fetched []string
}

func (fake *fakeFetcher) FetchRecording(_ context.Context, recordingURL string) (*bytes.Buffer, error) {
	fake.fetched = append(fake.fetched, recordingURL)
	if fake.err != nil {
		return nil, fake.err
	}

	return bytes.NewBufferString("RIFF"), nil
}

type fakeArchiver struct {
	keys []string
}

func (fake *fakeArchiver) Upload(_ context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	fake.keys = append(fake.keys, objectKey)
	return "http://minio.local/recordings/" + objectKey, nil
}

func TestUpsertOverwritesByCallSid(t *testing.T) {
	ctx := context.Background()
	recordingService := NewService(store.New(store.NewMemoryBackend()), &fakeFetcher{}, nil)

	_, err := recordingService.Upsert(ctx, Recording{CallSid: "CA1", URL: "u1", Status: "in-progress"})
	require.NoError(t, err)
	require.Len(t, recordingService.List(), 1)

	updated, err := recordingService.Upsert(ctx, Recording{CallSid: "CA1", URL: "u2", Duration: "12", Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, "u2", updated.URL)
	require.Len(t, recordingService.List(), 1)

	found, err := recordingService.GetByCallSid("CA1")
	require.NoError(t, err)
	require.Equal(t, "12", found.Duration)
	require.False(t, found.Timestamp.IsZero())

	_, err = recordingService.GetByCallSid("CA2")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = recordingService.Upsert(ctx, Recording{URL: "u3"})
	require.ErrorIs(t, err, ErrMissingCallSid)
}

func TestUpsertArchivesCompletedRecording(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{}
	archiver := &fakeArchiver{}
	recordingService := NewService(store.New(store.NewMemoryBackend()), fetcher, archiver)

	pending, err := recordingService.Upsert(ctx, Recording{CallSid: "CA1", URL: "u1", Status: "in-progress"})
	require.NoError(t, err)
	require.Empty(t, pending.ArchiveURL)
	require.Empty(t, archiver.keys)

	archived, err := recordingService.Upsert(ctx, Recording{
		CallSid: "CA1", RecordingSid: "RE1", URL: "u1", Status: "completed",
	})
	require.NoError(t, err)
	require.Equal(t, "http://minio.local/recordings/CA1/RE1.wav", archived.ArchiveURL)
	require.Equal(t, []string{"CA1/RE1.wav"}, archiver.keys)

	again, err := recordingService.Upsert(ctx, Recording{CallSid: "CA1", RecordingSid: "RE1", URL: "u1", Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, archived.ArchiveURL, again.ArchiveURL)
	require.Len(t, archiver.keys, 1)
}

func TestArchiveFailureKeepsRecording(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("twilio down")}
	recordingService := NewService(store.New(store.NewMemoryBackend()), fetcher, &fakeArchiver{})

	saved, err := recordingService.Upsert(context.Background(), Recording{CallSid: "CA1", URL: "u1", Status: "completed"})
	require.NoError(t, err)
	require.Empty(t, saved.ArchiveURL)
	require.Equal(t, []string{"u1"}, fetcher.fetched)
	require.Len(t, recordingService.List(), 1)
}
