package deadletter

import (
	"context"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"go.uber.org/zap"
)

// Processor replays a webhook payload.
type Processor interface {
	Process(ctx context.Context, kind string, payload map[string]string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, kind string, payload map[string]string) error

func (fn ProcessorFunc) Process(ctx context.Context, kind string, payload map[string]string) error {
	return fn(ctx, kind, payload)
}

type DeadLetterService struct {
	DLRepository *DeadLetterRepository
	Processor    Processor
}

func NewService(dlRepository *DeadLetterRepository, processor Processor) *DeadLetterService {
	return &DeadLetterService{
		DLRepository: dlRepository,
		Processor:    processor,
	}
}

func (dlService *DeadLetterService) Mark(ctx context.Context, kind string, payload map[string]string, errMsg string) error {
	dlWebhook, err := dlService.DLRepository.Create(ctx, kind, payload, errMsg)
	if err != nil {
		return err
	}

	logging.Logger.Info("mark webhook as dead letter",
		zap.String("id", dlWebhook.ID),
		zap.String("kind", kind),
		zap.String("error", errMsg),
	)

	return nil
}

// ProcessDeadLetter replays one entry. Success deletes it, failure counts a retry.
func (dlService *DeadLetterService) ProcessDeadLetter(ctx context.Context, dlWebhook WebhookDeadLetter) {
	err := dlService.DLRepository.MarkInProgress(ctx, dlWebhook.ID)
	if err != nil {
		logging.Logger.Info("failed to claim dead letter",
			zap.String("id", dlWebhook.ID),
			zap.String("error", err.Error()),
		)

		return
	}

	err = dlService.replay(ctx, dlWebhook)
	if err != nil {
		logging.Logger.Error("failed to replay webhook",
			zap.String("id", dlWebhook.ID),
			zap.String("kind", dlWebhook.Kind),
			zap.Int("retry_count", dlWebhook.RetryCount+1),
			zap.String("error", err.Error()),
		)
		_ = dlService.DLRepository.IncreaseRetryCount(ctx, dlWebhook.ID, err.Error())

		return
	}

	logging.Logger.Info("dead letter replayed successfully",
		zap.String("id", dlWebhook.ID),
		zap.String("kind", dlWebhook.Kind),
	)

	err = dlService.DLRepository.Delete(ctx, dlWebhook.ID)
	if err != nil {
		logging.Logger.Info("failed to delete replayed dead letter",
			zap.String("id", dlWebhook.ID),
			zap.String("error", err.Error()),
		)
	}
}

// replay runs the processor, turning a panic into an error so the entry goes
// back to pending with its retry counted.
func (dlService *DeadLetterService) replay(ctx context.Context, dlWebhook WebhookDeadLetter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while replaying webhook: %v", r)
		}
	}()

	return dlService.Processor.Process(ctx, dlWebhook.Kind, dlWebhook.Payload)
}
