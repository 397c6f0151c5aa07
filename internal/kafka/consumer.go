package kafka

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Consumer struct {
	Client sarama.ConsumerGroup
	Name   string
}

func NewConsumer(groupID, name string) (*Consumer, error) {
	client, err := createConsumerGroup(groupID, name)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client: client,
		Name:   name,
	}, nil
}

// Consume blocks, passing every message on topic to messageHandler until ctx ends.
func (c *Consumer) Consume(
	ctx context.Context,
	topic string,
	messageHandler func(context.Context, *sarama.ConsumerMessage),
) error {
	handler := &consumerGroupHandler{
		messageHandler: messageHandler,
	}

	runConsumerLoop(ctx, c.Client, topic, handler, c.Name)

	return nil
}

func (c *Consumer) Close() error {
	err := c.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka consumer",
			zap.String("consumer", c.Name),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("Kafka consumer closed successfully", zap.String("consumer", c.Name))

	return nil
}

type consumerGroupHandler struct {
	messageHandler func(context.Context, *sarama.ConsumerMessage)
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			h.messageHandler(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
