package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path string
	user string
	pass string
	form url.Values
}

type twilioStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	calls    atomic.Int32
	status   int
	body     string
}

func (stub *twilioStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stub.calls.Add(1)

	_ = r.ParseForm()
	user, pass, _ := r.BasicAuth()

	stub.mu.Lock()
	stub.requests = append(stub.requests, capturedRequest{path: r.URL.Path, user: user, pass: pass, form: r.PostForm})
	stub.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(stub.status)
	_, _ = w.Write([]byte(stub.body))
}

func newTestTwilioClient(t *testing.T, stub *twilioStub) *TwilioClient {
	t.Helper()

	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)

	previous := config.Conf
	t.Cleanup(func() { config.Conf = previous })

	config.Conf.TwilioAccountSid = "AC123"
	config.Conf.TwilioAuthToken = "secret"
	config.Conf.TwilioPhoneNumber = "+15005550006"
	config.Conf.TwilioBaseURL = server.URL
	config.Conf.PublicBaseURL = "https://fleet.example.com/"
	config.Conf.TwilioRetryMaxAttempts = 2
	config.Conf.TwilioRetryBackoffMin = 0
	config.Conf.TwilioRetryBackoffMax = 0

	return NewTwilioClient()
}

func TestSendMessage(t *testing.T) {
	stub := &twilioStub{status: http.StatusCreated, body: `{"sid":"SM1","status":"queued"}`}
	client := newTestTwilioClient(t, stub)

	result, err := client.SendMessage(context.Background(), "+905551234567", "Hi")
	require.NoError(t, err)
	require.Equal(t, &SendResult{ProviderID: "SM1", Status: "queued"}, result)

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", req.path)
	require.Equal(t, "AC123", req.user)
	require.Equal(t, "secret", req.pass)
	require.Equal(t, "+905551234567", req.form.Get("To"))
	require.Equal(t, "+15005550006", req.form.Get("From"))
	require.Equal(t, "Hi", req.form.Get("Body"))
	require.Equal(t, "https://fleet.example.com/twilio/status", req.form.Get("StatusCallback"))
}

func TestPlaceCallSendsScriptAndCallbacks(t *testing.T) {
	stub := &twilioStub{status: http.StatusCreated, body: `{"sid":"CA1","status":"queued"}`}
	client := newTestTwilioClient(t, stub)

	result, err := client.PlaceCall(context.Background(), "+905551234567", "<Response/>")
	require.NoError(t, err)
	require.Equal(t, "CA1", result.ProviderID)

	req := stub.requests[0]
	require.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", req.path)
	require.Equal(t, "<Response/>", req.form.Get("Twiml"))
	require.Equal(t, "true", req.form.Get("Record"))
	require.Equal(t, "https://fleet.example.com/twilio/recording", req.form.Get("RecordingStatusCallback"))
	require.Equal(t, callStatusEvents, req.form["StatusCallbackEvent"])
}

func TestClientErrorIsNotRetried(t *testing.T) {
	stub := &twilioStub{status: http.StatusBadRequest, body: `{"code":21211,"message":"Invalid 'To' Phone Number"}`}
	client := newTestTwilioClient(t, stub)

	_, err := client.SendMessage(context.Background(), "bogus", "Hi")
	require.ErrorIs(t, err, ErrProvider)
	require.ErrorContains(t, err, "Invalid 'To' Phone Number")
	require.Equal(t, int32(1), stub.calls.Load())
}

func TestServerErrorIsRetried(t *testing.T) {
	stub := &twilioStub{status: http.StatusServiceUnavailable, body: `{}`}
	client := newTestTwilioClient(t, stub)

	_, err := client.SendMessage(context.Background(), "+905551234567", "Hi")
	require.ErrorIs(t, err, ErrProvider)
	require.ErrorIs(t, err, ErrServerError)
	require.Equal(t, int32(2), stub.calls.Load())
}

func TestFetchRecording(t *testing.T) {
	stub := &twilioStub{status: http.StatusOK, body: "RIFFdata"}
	client := newTestTwilioClient(t, stub)

	buf, err := client.FetchRecording(context.Background(), client.BaseURL+"/2010-04-01/Accounts/AC123/Recordings/RE1")
	require.NoError(t, err)
	require.Equal(t, "RIFFdata", buf.String())
	require.Equal(t, "/2010-04-01/Accounts/AC123/Recordings/RE1.wav", stub.requests[0].path)
}

func TestSimulatedProvider(t *testing.T) {
	sim := NewSimulated()

	sms, err := sim.SendMessage(context.Background(), "+905551234567", "Hi")
	require.NoError(t, err)
	require.True(t, sms.Simulated)
	require.Regexp(t, `^sim_\d+_\d+$`, sms.ProviderID)

	call, err := sim.PlaceCall(context.Background(), "+905551234567", "<Response/>")
	require.NoError(t, err)
	require.True(t, call.Simulated)
	require.Regexp(t, `^sim_call_\d+_\d+$`, call.ProviderID)
	require.NotEqual(t, sms.ProviderID, call.ProviderID)

	_, err = sim.FetchRecording(context.Background(), "https://example.com/rec")
	require.ErrorIs(t, err, ErrProvider)
	require.False(t, sim.Configured())
}
