package healthchecker

import (
	"context"
	"slices"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Component is one dependency reported by the health endpoint. Ping may be nil
// for components that are only checked through their circuit breaker.
type Component struct {
	Name       string
	Service    string
	Configured bool
	Required   bool
	Ping       func(ctx context.Context) error
}

type ComponentStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Ready      bool   `json:"ready"`
	Error      string `json:"error,omitempty"`
}

type Report struct {
	Status       string            `json:"status"`
	Components   []ComponentStatus `json:"components"`
	OpenCircuits []string          `json:"openCircuits"`
	Timestamp    time.Time         `json:"timestamp"`
}

type Healthchecker struct {
	Components []Component
	Timeout    time.Duration
}

func NewService(components ...Component) *Healthchecker {
	return &Healthchecker{
		Components: components,
		Timeout:    time.Duration(max(config.Conf.HealthCheckTimeout, 1)) * time.Second,
	}
}

// Check pings every configured component concurrently.
func (h *Healthchecker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	open := circuitbreak.OpenServices()
	statuses := make([]ComponentStatus, len(h.Components))

	var group errgroup.Group

	for idx, component := range h.Components {
		group.Go(func() error {
			statuses[idx] = checkComponent(ctx, component, open)
			return nil
		})
	}

	_ = group.Wait()

	report := Report{
		Status:       StatusOK,
		Components:   statuses,
		OpenCircuits: open,
		Timestamp:    time.Now(),
	}

	for idx, status := range statuses {
		if h.Components[idx].Required && !status.Ready {
			report.Status = StatusDegraded
		}
	}

	if len(open) > 0 {
		report.Status = StatusDegraded
	}

	return report
}

func checkComponent(ctx context.Context, component Component, open []string) ComponentStatus {
	status := ComponentStatus{Name: component.Name, Configured: component.Configured}

	if !component.Configured {
		return status
	}

	if component.Service != "" && slices.Contains(open, component.Service) {
		status.Error = "circuit breaker is open"
		return status
	}

	if component.Ping != nil {
		err := component.Ping(ctx)
		if err != nil {
			status.Error = err.Error()
			return status
		}
	}

	status.Ready = true

	return status
}

// Monitor logs every breaker trip and rechecks the tripped component until it
// answers again.
func (h *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("health checker monitor start successfully")

	for {
		select {
		case <-ctx.Done():
			return
		case serviceName := <-circuitbreak.CircuitBreakChan:
			logging.Logger.Warn("circuit break happened", zap.String("service", serviceName))
			h.waitHealthy(ctx, serviceName)
		}
	}
}

func (h *Healthchecker) waitHealthy(ctx context.Context, serviceName string) {
	idx := slices.IndexFunc(h.Components, func(component Component) bool {
		return component.Service == serviceName && component.Ping != nil
	})
	if idx < 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(max(config.Conf.HealthCheckerMonitorInterval, 1)) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.Timeout)
			err := h.Components[idx].Ping(pingCtx)
			cancel()

			if err == nil {
				logging.Logger.Info(serviceName + " service back healthy")
				return
			}

			logging.Logger.Warn("service still unhealthy",
				zap.String("service", serviceName),
				zap.String("error", err.Error()),
			)
		}
	}
}
