package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const apiVersion = "2010-04-01"

// Webhook paths the provider is told to call back on.
const (
	StatusCallbackPath        = "/twilio/status"
	RecordingCallbackPath     = "/twilio/recording"
	TranscriptionEventsPath   = "/twilio/transcriptions"
	TranscriptionCallbackPath = "/twilio/transcription"
)

var callStatusEvents = []string{"initiated", "ringing", "answered", "completed"}

type twilioResource struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

type response struct {
	body       []byte
	statusCode int
}

type TwilioClient struct {
	HTTPClient     *http.Client
	CircuitBreaker *gobreaker.CircuitBreaker[response]
	BaseURL        string
	AccountSid     string
	AuthToken      string
	From           string
	PublicBaseURL  string
}

func NewTwilioClient() *TwilioClient {
	cbSettings := circuitbreak.NewSettings(
		circuitbreak.ProviderService,
		config.Conf.TwilioIntervalCB,
		config.Conf.TwilioConsecutiveFailuresCB,
		func(err error) bool {
			return !errors.Is(err, ErrServerError)
		},
	)

	return &TwilioClient{
		HTTPClient: &http.Client{
			Timeout: time.Duration(config.Conf.TwilioTimeout) * time.Second,
		},
		CircuitBreaker: gobreaker.NewCircuitBreaker[response](cbSettings),
		BaseURL:        config.Conf.TwilioBaseURL,
		AccountSid:     config.Conf.TwilioAccountSid,
		AuthToken:      config.Conf.TwilioAuthToken,
		From:           config.Conf.TwilioPhoneNumber,
		PublicBaseURL:  strings.TrimRight(config.Conf.PublicBaseURL, "/"),
	}
}

func (twilioClient *TwilioClient) Configured() bool {
	return true
}

// SendMessage creates an SMS with a status callback when a public URL is known.
func (twilioClient *TwilioClient) SendMessage(ctx context.Context, to, body string) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", twilioClient.From)
	form.Set("Body", body)

	if twilioClient.PublicBaseURL != "" {
		form.Set("StatusCallback", twilioClient.PublicBaseURL+StatusCallbackPath)
	}

	return twilioClient.create(ctx, "Messages.json", form)
}

// PlaceCall starts a call that runs script, an inline TwiML document, and records the reply.
func (twilioClient *TwilioClient) PlaceCall(ctx context.Context, to, script string) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", twilioClient.From)
	form.Set("Twiml", script)
	form.Set("Record", "true")

	if twilioClient.PublicBaseURL != "" {
		form.Set("StatusCallback", twilioClient.PublicBaseURL+StatusCallbackPath)
		form.Set("RecordingStatusCallback", twilioClient.PublicBaseURL+RecordingCallbackPath)

		for _, event := range callStatusEvents {
			form.Add("StatusCallbackEvent", event)
		}
	}

	return twilioClient.create(ctx, "Calls.json", form)
}

// FetchRecording downloads the audio behind a recording URL.
func (twilioClient *TwilioClient) FetchRecording(ctx context.Context, recordingURL string) (*bytes.Buffer, error) {
	if !strings.HasSuffix(recordingURL, ".wav") && !strings.HasSuffix(recordingURL, ".mp3") {
		recordingURL += ".wav"
	}

	resp, err := twilioClient.doRequestWithRetry(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch recording: %w", ErrProvider, err)
	}

	if resp.statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch recording returned %d", ErrProvider, resp.statusCode)
	}

	return bytes.NewBuffer(resp.body), nil
}

func (twilioClient *TwilioClient) create(ctx context.Context, resource string, form url.Values) (*SendResult, error) {
	apiURL, err := url.JoinPath(twilioClient.BaseURL, apiVersion, "Accounts", twilioClient.AccountSid, resource)
	if err != nil {
		return nil, err
	}

	resp, err := twilioClient.doRequestWithRetry(ctx, http.MethodPost, apiURL, form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	if resp.statusCode != http.StatusCreated && resp.statusCode != http.StatusOK {
		var apiErr twilioError

		_ = json.Unmarshal(resp.body, &apiErr)

		logging.Logger.Error("Twilio rejected request",
			zap.String("resource", resource),
			zap.Int("status_code", resp.statusCode),
			zap.Int("twilio_code", apiErr.Code),
			zap.String("message", apiErr.Message),
		)

		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrProvider, resource, resp.statusCode, apiErr.Message)
	}

	var created twilioResource

	err = json.Unmarshal(resp.body, &created)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrProvider, resource, err)
	}

	logging.Logger.Info("Twilio request accepted",
		zap.String("resource", resource),
		zap.String("sid", created.Sid),
		zap.String("status", created.Status),
	)

	return &SendResult{ProviderID: created.Sid, Status: created.Status}, nil
}

func (twilioClient *TwilioClient) doRequestWithRetry(
	ctx context.Context,
	method, apiURL string,
	form url.Values,
) (response, error) {
	return twilioClient.CircuitBreaker.Execute(func() (response, error) {
		var resp response

		err := retry.Do(
			func() error {
				var err error

				resp, err = twilioClient.doRequest(ctx, method, apiURL, form)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrServerError, err)
				}

				if resp.statusCode >= http.StatusInternalServerError {
					return fmt.Errorf("%w: status %d", ErrServerError, resp.statusCode)
				}

				return nil
			},
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.Attempts(max(config.Conf.TwilioRetryMaxAttempts, 1)),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(time.Duration(config.Conf.TwilioRetryBackoffMin)*time.Second),
			retry.MaxDelay(time.Duration(config.Conf.TwilioRetryBackoffMax)*time.Second),
		)

		return resp, err
	})
}

func (twilioClient *TwilioClient) doRequest(
	ctx context.Context,
	method, apiURL string,
	form url.Values,
) (response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return response{}, err
	}

	req.SetBasicAuth(twilioClient.AccountSid, twilioClient.AuthToken)

	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := twilioClient.HTTPClient.Do(req)
	if err != nil {
		return response{}, err
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{statusCode: resp.StatusCode}, err
	}

	return response{body: content, statusCode: resp.StatusCode}, nil
}
