package transcript

import (
	"context"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"github.com/stretchr/testify/require"
)

func newTestService() *TranscriptService {
	return NewService(store.New(store.NewMemoryBackend()))
}

func TestApplyEventLifecycle(t *testing.T) {
	ctx := context.Background()
	transcriptService := newTestService()

	started, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "transcription-started", SequenceID: "1"})
	require.NoError(t, err)
	require.Equal(t, StatusStarted, started.Status)
	require.Empty(t, started.Text)

	_, err = transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "content", SequenceID: "2", Text: "Evet"})
	require.NoError(t, err)

	content, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "content", SequenceID: "3", Text: "geliyorum"})
	require.NoError(t, err)
	require.Equal(t, "Evet geliyorum", content.Text)
	require.Equal(t, StatusContent, content.Status)

	stopped, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "stopped", SequenceID: "4"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stopped.Status)
	require.Len(t, stopped.Events, 4)
}

func TestApplyEventIgnoresRepeatedSequence(t *testing.T) {
	ctx := context.Background()
	transcriptService := newTestService()

	_, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "content", SequenceID: "7", Text: "tamam"})
	require.NoError(t, err)

	repeated, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA1", Type: "content", SequenceID: "7", Text: "tamam"})
	require.NoError(t, err)
	require.Len(t, repeated.Events, 1)
	require.Equal(t, "tamam", repeated.Text)
}

func TestApplyEventErrorAndValidation(t *testing.T) {
	ctx := context.Background()
	transcriptService := newTestService()

	failed, err := transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA9", Type: "error", Error: "stream closed"})
	require.NoError(t, err)
	require.Equal(t, StatusError, failed.Status)
	require.Equal(t, "stream closed", failed.Error)

	_, err = transcriptService.ApplyEvent(ctx, Incoming{Type: "started"})
	require.ErrorIs(t, err, ErrMissingCallSid)

	_, err = transcriptService.ApplyEvent(ctx, Incoming{CallSid: "CA9", Type: "paused"})
	require.ErrorIs(t, err, ErrUnknownEventType)

	_, err = transcriptService.GetByCallSid("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	transcriptService := newTestService()

	summary := &summarizer.Summary{Category: summarizer.CategoryApproval, Summary: "kabul"}

	completed, err := transcriptService.Complete(ctx, "CA1", "Evet kabul ediyorum", summary)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, "Evet kabul ediyorum", completed.Text)
	require.Equal(t, summary, completed.Summary)

	require.Len(t, transcriptService.List(), 1)
}
