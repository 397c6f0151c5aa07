package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/preset"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/webhook"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	fleetStore := store.New(store.NewMemoryBackend())
	sender := provider.NewSimulated()
	summary := summarizer.Disabled{}

	driverService := driver.NewService(fleetStore)
	campaignService := campaign.NewService(fleetStore, nil)
	recordingService := recording.NewService(fleetStore, sender, nil)
	transcriptService := transcript.NewService(fleetStore)
	webhookHandler := webhook.NewHandler(campaignService, recordingService, transcriptService, summary)
	dlService := deadletter.NewService(deadletter.NewRepository(fleetStore), webhookHandler)

	presets, err := preset.Load()
	require.NoError(t, err)

	dispatchPool, err := ants.NewPool(2)
	require.NoError(t, err)

	webhookPool, err := ants.NewPool(2, ants.WithNonblocking(true))
	require.NoError(t, err)

	t.Cleanup(func() {
		dispatchPool.Release()
		webhookPool.Release()
	})

	return NewServer(context.Background(), Dependencies{
		DriverService:    driverService,
		CampaignService:  campaignService,
		RecordingService: recordingService,
		Dispatcher: &campaign.Dispatcher{
			CampaignService: campaignService,
			Drivers:         driverService,
			Provider:        sender,
			Policy:          campaign.DefaultSendPolicy(),
			Delays:          map[campaign.Channel]time.Duration{},
			ScriptOptions:   provider.DefaultScriptOptions(),
		},
		TranscriptService: transcriptService,
		WebhookHandler:    webhookHandler,
		DeadLetterService: dlService,
		Provider:          sender,
		Summarizer:        summary,
		Presets:           presets,
		Healthchecker: healthchecker.NewService(
			healthchecker.StoreComponent(fleetStore.Backend),
			healthchecker.ProviderComponent(sender),
		),
		DispatchPool: dispatchPool,
		WebhookPool:  webhookPool,
	})
}

func doJSON(t *testing.T, server *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = strings.NewReader(string(encoded))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	server.Router.ServeHTTP(recorder, req)

	return recorder
}

func postForm(t *testing.T, server *Server, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recorder := httptest.NewRecorder()
	server.Router.ServeHTTP(recorder, req)

	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()

	var decoded T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))

	return decoded
}

func addDriver(t *testing.T, server *Server, name, phone string) driver.Driver {
	t.Helper()

	recorder := doJSON(t, server, http.MethodPost, "/api/drivers", map[string]string{
		"name":         name,
		"phone_number": phone,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	return decodeBody[driverResponse](t, recorder).Driver
}

func TestDriversImportAndList(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodPost, "/api/drivers", map[string]any{
		"csvData": "Name,Phone\nAyşe,05550000001\nMehmet,5550000002\n",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	imported := decodeBody[driversResponse](t, recorder)
	require.True(t, imported.Success)
	require.Equal(t, 2, imported.Added)
	require.Equal(t, "+905550000001", imported.Drivers[0].PhoneNumber)

	recorder = doJSON(t, server, http.MethodPost, "/api/drivers", map[string]any{"csvData": "email\nx@y.z\n"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, server, http.MethodGet, "/api/drivers", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, decodeBody[[]driver.Driver](t, recorder), 2)
}

func TestCreateCampaignRejectsInvalidBody(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns", strings.NewReader("{"))
	recorder := httptest.NewRecorder()
	server.Router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doJSON(t, server, http.MethodPost, "/api/campaigns", map[string]any{
		"name": "missing targets",
		"type": "sms",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.False(t, decodeBody[errorResponse](t, recorder).Success)

	recorder = doJSON(t, server, http.MethodGet, "/api/campaigns/unknown", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStartCampaignRunsInBackground(t *testing.T) {
	server := newTestServer(t)

	first := addDriver(t, server, "Ayşe", "05550000001")
	second := addDriver(t, server, "Mehmet", "05550000002")

	recorder := doJSON(t, server, http.MethodPost, "/api/campaigns", map[string]any{
		"name":              "Shift change",
		"type":              "sms",
		"template_content":  "Merhaba {name}",
		"target_driver_ids": []string{first.ID, second.ID, "gone"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	created := decodeBody[campaignResponse](t, recorder).Campaign
	require.Equal(t, campaign.StatusScheduled, created.Status)

	recorder = doJSON(t, server, http.MethodPost, "/api/campaigns/"+created.ID+"/start", nil)
	require.Equal(t, http.StatusAccepted, recorder.Code)
	require.Equal(t, campaign.StatusOngoing, decodeBody[campaignResponse](t, recorder).Campaign.Status)

	require.Eventually(t, func() bool {
		found, err := server.CampaignService.Get(created.ID)
		return err == nil && found.Status == campaign.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	recorder = doJSON(t, server, http.MethodPost, "/api/campaigns/"+created.ID+"/start", nil)
	require.Equal(t, http.StatusConflict, recorder.Code)

	recorder = doJSON(t, server, http.MethodGet, "/api/campaigns/"+created.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	stats := decodeBody[campaign.Stats](t, recorder)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Pending)

	recorder = doJSON(t, server, http.MethodGet, "/api/stats", nil)
	overall := decodeBody[campaign.OverallStats](t, recorder)
	require.Equal(t, 1, overall.CompletedCampaigns)
	require.Equal(t, 2, overall.TotalDrivers)
	require.Equal(t, 2, overall.TotalCommunications)
}

func TestStartCampaignWithoutTargets(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodPost, "/api/campaigns", map[string]any{
		"name":              "Nobody",
		"type":              "voice",
		"template_content":  "Merhaba",
		"target_driver_ids": []string{"gone"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	created := decodeBody[campaignResponse](t, recorder).Campaign

	recorder = doJSON(t, server, http.MethodPost, "/api/campaigns/"+created.ID+"/start", nil)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	found, err := server.CampaignService.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusScheduled, found.Status)
}

func TestStatusCallbackUpdatesLog(t *testing.T) {
	server := newTestServer(t)
	target := addDriver(t, server, "Ayşe", "05550000001")

	created, err := server.CampaignService.Create(context.Background(), campaign.CreateRequest{
		Name:            "Callback",
		Channel:         campaign.ChannelSMS,
		Template:        "Merhaba {name}",
		TargetDriverIDs: []string{target.ID},
	})
	require.NoError(t, err)

	finished, err := server.Dispatcher.Dispatch(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, finished.Logs, 1)

	providerID := finished.Logs[0].ProviderID

	recorder := postForm(t, server, "/twilio/status", url.Values{
		"MessageSid":    {providerID},
		"MessageStatus": {"delivered"},
	})
	require.Equal(t, http.StatusNoContent, recorder.Code)

	require.Eventually(t, func() bool {
		found, err := server.CampaignService.Get(created.ID)
		return err == nil && found.Logs[0].Status == "delivered"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFailedCallbackIsDeadLettered(t *testing.T) {
	server := newTestServer(t)

	recorder := postForm(t, server, "/twilio/call-status", url.Values{"CallStatus": {"completed"}})
	require.Equal(t, http.StatusNoContent, recorder.Code)

	require.Eventually(t, func() bool {
		return len(server.DeadLetterService.DLRepository.List()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entry := server.DeadLetterService.DLRepository.List()[0]
	require.Equal(t, webhook.KindStatus, entry.Kind)
	require.Equal(t, "completed", entry.Payload["CallStatus"])
}

func TestCallbackIsAcknowledgedWhenPoolIsFull(t *testing.T) {
	server := newTestServer(t)

	release := make(chan struct{})
	defer close(release)

	for range server.WebhookPool.Cap() {
		require.NoError(t, server.WebhookPool.Submit(func() { <-release }))
	}

	acknowledged := make(chan int, 1)

	go func() {
		acknowledged <- postForm(t, server, "/twilio/status", url.Values{
			"MessageSid":    {"SM1"},
			"MessageStatus": {"delivered"},
		}).Code
	}()

	select {
	case code := <-acknowledged:
		require.Equal(t, http.StatusNoContent, code)
	case <-time.After(time.Second):
		t.Fatal("status callback was not acknowledged while the webhook pool was full")
	}

	entries := server.DeadLetterService.DLRepository.List()
	require.Len(t, entries, 1)
	require.Equal(t, webhook.KindStatus, entries[0].Kind)
	require.Equal(t, "SM1", entries[0].Payload["MessageSid"])
}

func TestMalformedCallbackIsAcknowledgedAndDeadLettered(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/twilio/transcription", strings.NewReader("CallSid=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recorder := httptest.NewRecorder()
	server.Router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	entries := server.DeadLetterService.DLRepository.List()
	require.Len(t, entries, 1)
	require.Equal(t, webhook.KindTranscription, entries[0].Kind)
	require.Equal(t, "CallSid=%zz", entries[0].Payload[rawBodyKey])
}

func TestRecordingCallbackAnswersWithTwiML(t *testing.T) {
	server := newTestServer(t)

	recorder := postForm(t, server, "/twilio/recording", url.Values{
		"CallSid":         {"CA1"},
		"RecordingSid":    {"RE1"},
		"RecordingUrl":    {"https://api.twilio.com/recordings/RE1"},
		"RecordingStatus": {"completed"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "text/xml", recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Body.String(), "<Say")

	require.Eventually(t, func() bool {
		_, err := server.RecordingService.GetByCallSid("CA1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	recorder = doJSON(t, server, http.MethodGet, "/api/recordings?callSid=CA1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "RE1", decodeBody[recordingsResponse](t, recorder).Recording.RecordingSid)

	recorder = doJSON(t, server, http.MethodGet, "/api/transcripts?callSid=CA1", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestVoiceScript(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodGet, "/twilio/voice?message=Merhaba", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "Merhaba")
}

func TestSendTestMessage(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodPost, "/api/send-sms", map[string]any{
		"phoneNumber": "05550000001",
		"message":     "test",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	sent := decodeBody[sendTestResponse](t, recorder)
	require.True(t, sent.Simulated)
	require.NotEmpty(t, sent.Sid)

	recorder = doJSON(t, server, http.MethodPost, "/api/send-sms", map[string]any{
		"phoneNumber": "abc",
		"message":     "test",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTemplatesAndHealth(t *testing.T) {
	server := newTestServer(t)

	recorder := doJSON(t, server, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, decodeBody[preset.Catalog](t, recorder).SMS)

	recorder = doJSON(t, server, http.MethodPost, "/api/templates/generate", map[string]any{
		"type":    "sms",
		"purpose": "shift reminder",
	})
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	recorder = doJSON(t, server, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, healthchecker.StatusOK, decodeBody[healthchecker.Report](t, recorder).Status)
}
