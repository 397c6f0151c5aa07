package provider

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"go.uber.org/zap"
)

type SimulatedProvider struct {
	seq atomic.Uint64
}

func NewSimulated() *SimulatedProvider {
	return &SimulatedProvider{}
}

func (simulatedProvider *SimulatedProvider) nextID(prefix string) string {
	return fmt.Sprintf("%s%d_%d", prefix, time.Now().UnixMilli(), simulatedProvider.seq.Add(1))
}

func (simulatedProvider *SimulatedProvider) SendMessage(_ context.Context, to, body string) (*SendResult, error) {
	logging.Logger.Info("SMS simulated", zap.String("to", to), zap.Int("body_length", len(body)))

	return &SendResult{
		ProviderID: simulatedProvider.nextID("sim_"),
		Status:     "sent",
		Simulated:  true,
	}, nil
}

func (simulatedProvider *SimulatedProvider) PlaceCall(_ context.Context, to, script string) (*SendResult, error) {
	logging.Logger.Info("Call simulated", zap.String("to", to), zap.Int("script_length", len(script)))

	return &SendResult{
		ProviderID: simulatedProvider.nextID("sim_call_"),
		Status:     "initiated",
		Simulated:  true,
	}, nil
}

func (simulatedProvider *SimulatedProvider) FetchRecording(context.Context, string) (*bytes.Buffer, error) {
	return nil, fmt.Errorf("%w: simulated provider has no recordings", ErrProvider)
}

func (simulatedProvider *SimulatedProvider) Configured() bool {
	return false
}
