package provider

import (
	"bytes"
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
)

var (
	ErrProvider    = errors.New("provider error")
	ErrServerError = errors.New("provider server error")
)

type SendResult struct {
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
	Simulated  bool   `json:"simulated"`
}

// Provider sends messages and places calls. Webhooks for the returned ProviderID
// arrive asynchronously.
type Provider interface {
	SendMessage(ctx context.Context, to, body string) (*SendResult, error)
	PlaceCall(ctx context.Context, to, script string) (*SendResult, error)
	FetchRecording(ctx context.Context, recordingURL string) (*bytes.Buffer, error)
	Configured() bool
}

// New returns the Twilio client when credentials are configured, the simulated provider otherwise.
func New() Provider {
	if !config.Conf.TwilioConfigured() {
		logging.Logger.Warn("Twilio credentials are missing, sends are simulated")
		return NewSimulated()
	}

	return NewTwilioClient()
}
