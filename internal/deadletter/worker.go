package deadletter

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type DeadLetterWorker struct {
	WorkerPool *ants.Pool
	DLService  *DeadLetterService
	Interval   time.Duration
}

func NewWorker(dlService *DeadLetterService) (*DeadLetterWorker, error) {
	workerPool, err := ants.NewPool(config.Conf.DeadLetterPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &DeadLetterWorker{
		WorkerPool: workerPool,
		DLService:  dlService,
		Interval:   time.Duration(max(config.Conf.DeadLetterInterval, 1)) * time.Minute,
	}, nil
}

func (dlWorker *DeadLetterWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dlWorker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.ProcessPending(ctx)
		}
	}
}

// ProcessPending submits every ready entry to the pool.
func (dlWorker *DeadLetterWorker) ProcessPending(ctx context.Context) {
	dlWebhooks := dlWorker.DLService.DLRepository.GetPending(time.Now())
	if len(dlWebhooks) == 0 {
		logging.Logger.Debug("no dead letters are pending")
		return
	}

	logging.Logger.Info("start processing dead letters", zap.Int("count", len(dlWebhooks)))

	for _, dlWebhook := range dlWebhooks {
		err := dlWorker.WorkerPool.Submit(func() {
			dlWorker.DLService.ProcessDeadLetter(ctx, dlWebhook)
		})
		if err != nil {
			logging.Logger.Error("failed to submit dead letter to worker pool",
				zap.String("id", dlWebhook.ID),
				zap.String("error", err.Error()),
			)
		}
	}
}

func (dlWorker *DeadLetterWorker) Release(timeout time.Duration) error {
	return dlWorker.WorkerPool.ReleaseTimeout(timeout)
}
