package circuitbreak

import (
	"slices"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var CircuitBreakChan chan string

const (
	ProviderService      = "provider"
	SummarizerService    = "summarizer"
	DBService            = "database"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

const breakChanSize = 16

var (
	openMu   sync.RWMutex
	openedAt = map[string]time.Time{}
)

func Init() {
	CircuitBreakChan = make(chan string, breakChanSize)
}

// TriggerError records service as open and notifies the monitor without blocking.
func TriggerError(service string) {
	openMu.Lock()
	openedAt[service] = time.Now()
	openMu.Unlock()

	if CircuitBreakChan == nil {
		return
	}

	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Warn("circuit break channel is full, dropping notification", zap.String("service", service))
	}
}

func Recover(service string) {
	openMu.Lock()
	delete(openedAt, service)
	openMu.Unlock()
}

// OpenServices returns the services whose breaker is currently open, sorted by name.
func OpenServices() []string {
	openMu.RLock()
	defer openMu.RUnlock()

	services := make([]string, 0, len(openedAt))
	for service := range openedAt {
		services = append(services, service)
	}

	slices.Sort(services)

	return services
}

// NewSettings builds breaker settings that trip after consecutiveFailures and report state changes.
// isSuccessful may be nil.
func NewSettings(
	service string,
	interval uint32,
	consecutiveFailures uint32,
	isSuccessful func(err error) bool,
) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     service,
		Interval: time.Duration(interval) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			willTrip := counts.ConsecutiveFailures >= consecutiveFailures

			if willTrip {
				logging.Logger.Error("Circuit breaker about to trip",
					zap.String("service", service),
					zap.Uint32("total_requests", counts.Requests),
					zap.Uint32("total_failures", counts.TotalFailures),
					zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
					zap.Uint32("threshold", consecutiveFailures),
				)
			}

			return willTrip
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			switch toState {
			case gobreaker.StateOpen:
				TriggerError(service)
			case gobreaker.StateClosed:
				Recover(service)
			case gobreaker.StateHalfOpen:
			}
		},
		IsSuccessful: isSuccessful,
	}
}
