package summarizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)

		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}

		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-3.5-turbo",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})

		_, _ = w.Write(body)
	}))

	t.Cleanup(server.Close)

	return server
}

func configureOpenAI(t *testing.T, baseURL string) {
	t.Helper()

	previous := config.Conf
	t.Cleanup(func() { config.Conf = previous })

	config.Conf.OpenAIAPIKey = "test-key"
	config.Conf.OpenAIBaseURL = baseURL
	config.Conf.OpenAIRetryMaxAttempts = 1
	config.Conf.OpenAIRetryMinBackoff = 0
	config.Conf.OpenAIRetryMaxBackoff = 0
}

func TestDisabledReturnsRawText(t *testing.T) {
	previous := config.Conf
	t.Cleanup(func() { config.Conf = previous })

	config.Conf.OpenAIAPIKey = ""

	client := NewClient()
	require.False(t, client.Configured())

	summary := client.Summarize(context.Background(), "I will be there at nine")
	require.Equal(t, Summary{Category: CategoryOther, Summary: "I will be there at nine"}, summary)

	_, err := client.GenerateTemplate(context.Background(), "sms", "reminder", "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSummarizeParsesJSONAnswer(t *testing.T) {
	server := completionServer(t, http.StatusOK,
		`{"category": "approval", "summary": "Driver confirms the shift", "action_required": false}`)
	configureOpenAI(t, server.URL)

	summary := NewClient().Summarize(context.Background(), "yes I can take the shift")
	require.Equal(t, CategoryApproval, summary.Category)
	require.Equal(t, "Driver confirms the shift", summary.Summary)
	require.False(t, summary.ActionRequired)
}

func TestSummarizeUnparsableAnswer(t *testing.T) {
	server := completionServer(t, http.StatusOK, "The driver seems unsure.")
	configureOpenAI(t, server.URL)

	summary := NewClient().Summarize(context.Background(), "hmm maybe")
	require.Equal(t, CategoryOther, summary.Category)
	require.Equal(t, "The driver seems unsure.", summary.Summary)
}

func TestSummarizeAPIFailureFallsBack(t *testing.T) {
	server := completionServer(t, http.StatusInternalServerError, "")
	configureOpenAI(t, server.URL)

	summary := NewClient().Summarize(context.Background(), "call me back")
	require.Equal(t, CategoryError, summary.Category)
	require.Equal(t, "call me back", summary.Summary)
	require.True(t, summary.ActionRequired)
	require.NotEmpty(t, summary.Error)
}

func TestGenerateTemplate(t *testing.T) {
	server := completionServer(t, http.StatusOK, "  Reminder: charge your vehicle tonight.  ")
	configureOpenAI(t, server.URL)

	text, err := NewClient().GenerateTemplate(context.Background(), "sms", "charging reminder", "friendly")
	require.NoError(t, err)
	require.Equal(t, "Reminder: charge your vehicle tonight.", text)
}

func TestParseSummaryStripsCodeFence(t *testing.T) {
	summary := parseSummary("```json\n{\"category\":\"QUESTION\",\"summary\":\"asks about route\",\"action_required\":true}\n```", "raw")
	require.Equal(t, Summary{Category: CategoryQuestion, Summary: "asks about route", ActionRequired: true}, summary)
}
