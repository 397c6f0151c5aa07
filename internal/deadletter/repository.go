package deadletter

import (
	"context"
	"errors"
	"slices"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidTransition = errors.New("dead letter is not in the expected status")

type DeadLetterRepository struct {
	DeadLetters *store.Collection[WebhookDeadLetter]
}

func NewRepository(fleetStore *store.Store) *DeadLetterRepository {
	return &DeadLetterRepository{
		DeadLetters: store.NewCollection(fleetStore, store.DeadLettersCollection, func(dl WebhookDeadLetter) string {
			return dl.ID
		}),
	}
}

func (dlRepository *DeadLetterRepository) Create(
	ctx context.Context,
	kind string,
	payload map[string]string,
	errMsg string,
) (WebhookDeadLetter, error) {
	now := time.Now()
	dlWebhook := WebhookDeadLetter{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		Error:       errMsg,
		Status:      StatusPending,
		LastRetryAt: &now,
		CreatedAt:   now,
	}

	err := dlRepository.DeadLetters.Append(ctx, dlWebhook)
	if err != nil {
		logging.Logger.Error("failed to create dead letter record",
			zap.String("kind", kind),
			zap.String("error", err.Error()),
		)

		return WebhookDeadLetter{}, err
	}

	return dlWebhook, nil
}

// GetPending returns the oldest replayable entries: pending ones whose retry
// delay has elapsed, and claims abandoned by a crashed replay or a restart.
func (dlRepository *DeadLetterRepository) GetPending(now time.Time) []WebhookDeadLetter {
	readyBefore := now.Add(-time.Duration(config.Conf.DeadLetterRetryDelay) * time.Minute)

	records := dlRepository.DeadLetters.Find(func(dl WebhookDeadLetter) bool {
		if dl.RetryCount >= config.Conf.DeadLetterMaxRetries {
			return false
		}

		if dl.Status == StatusInProgress {
			return staleClaim(dl, now)
		}

		return dl.Status == StatusPending &&
			(dl.LastRetryAt == nil || !dl.LastRetryAt.After(readyBefore))
	})

	slices.SortStableFunc(records, func(a, b WebhookDeadLetter) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if config.Conf.DeadLetterBatchLimit > 0 && len(records) > config.Conf.DeadLetterBatchLimit {
		records = records[:config.Conf.DeadLetterBatchLimit]
	}

	return records
}

// MarkInProgress claims a pending or abandoned entry so concurrent ticks do not
// replay it twice.
func (dlRepository *DeadLetterRepository) MarkInProgress(ctx context.Context, id string) error {
	_, err := dlRepository.DeadLetters.Update(ctx, id, func(dl *WebhookDeadLetter) error {
		now := time.Now()

		if dl.Status != StatusPending && !staleClaim(*dl, now) {
			return ErrInvalidTransition
		}

		dl.Status = StatusInProgress
		dl.ClaimedAt = &now

		return nil
	})

	return err
}

// staleClaim reports an in-progress entry whose claim is older than the claim
// timeout of max(retry delay, 1) minutes.
func staleClaim(dl WebhookDeadLetter, now time.Time) bool {
	if dl.Status != StatusInProgress {
		return false
	}

	if dl.ClaimedAt == nil {
		return true
	}

	claimTimeout := time.Duration(max(config.Conf.DeadLetterRetryDelay, 1)) * time.Minute

	return now.Sub(*dl.ClaimedAt) >= claimTimeout
}

func (dlRepository *DeadLetterRepository) IncreaseRetryCount(ctx context.Context, id string, errMsg string) error {
	_, err := dlRepository.DeadLetters.Update(ctx, id, func(dl *WebhookDeadLetter) error {
		now := time.Now()

		dl.RetryCount++
		dl.LastRetryAt = &now
		dl.ClaimedAt = nil
		dl.Status = StatusPending
		dl.Error = errMsg

		return nil
	})
	if err != nil {
		logging.Logger.Error("failed to increase dead letter retry count",
			zap.String("id", id),
			zap.String("error", err.Error()),
		)
	}

	return err
}

func (dlRepository *DeadLetterRepository) Delete(ctx context.Context, id string) error {
	return dlRepository.DeadLetters.Delete(ctx, id)
}

func (dlRepository *DeadLetterRepository) List() []WebhookDeadLetter {
	return dlRepository.DeadLetters.GetAll()
}
