package kafka

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	prometheusFleet "git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// CampaignRunner runs a campaign that was already marked ongoing.
type CampaignRunner interface {
	RunByID(ctx context.Context, id string) (campaign.Campaign, error)
}

type DispatchHandler struct {
	Runner     CampaignRunner
	WorkerPool *ants.Pool
}

func NewDispatchHandler(runner CampaignRunner, workerPool *ants.Pool) *DispatchHandler {
	return &DispatchHandler{
		Runner:     runner,
		WorkerPool: workerPool,
	}
}

// HandleMessage hands the command to the worker pool so the partition keeps moving.
func (dispatchHandler *DispatchHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	err := dispatchHandler.WorkerPool.Submit(func() {
		dispatchHandler.Process(ctx, msg)
	})
	if err != nil {
		logging.Logger.Error("failed to submit dispatch command to ants pool",
			zap.ByteString("campaign_id", msg.Key),
			zap.String("error", err.Error()),
		)
	}
}

func (dispatchHandler *DispatchHandler) Process(ctx context.Context, msg *sarama.ConsumerMessage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("panic in dispatch worker", zap.Any("recover", r))
		}
	}()

	var command DispatchCommand

	err := json.Unmarshal(msg.Value, &command)
	if err != nil || command.CampaignID == "" {
		logging.Logger.Error("invalid dispatch command",
			zap.ByteString("msg_value", msg.Value),
			zap.Error(err),
		)

		return
	}

	if !command.CreatedAt.IsZero() {
		prometheusFleet.KafkaMessageLatency.WithLabelValues(msg.Topic).Observe(time.Since(command.CreatedAt).Seconds())
	}

	finished, err := dispatchHandler.Runner.RunByID(ctx, command.CampaignID)
	if errors.Is(err, campaign.ErrNotOngoing) {
		logging.Logger.Info("skipping dispatch command for campaign that already ran",
			zap.String("campaign_id", command.CampaignID),
		)

		return
	}

	if err != nil {
		logging.Logger.Error("dispatch command failed",
			zap.String("campaign_id", command.CampaignID),
			zap.String("error", err.Error()),
		)

		return
	}

	logging.Logger.Info("dispatch command processed",
		zap.String("campaign_id", command.CampaignID),
		zap.String("status", string(finished.Status)),
	)
}
