package kafka

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ProducerResult struct {
	Partition int32
	Offset    int64
}

// DispatchCommand asks a dispatcher to run an ongoing campaign.
type DispatchCommand struct {
	CampaignID string    `json:"campaign_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Producer struct {
	Client         sarama.SyncProducer
	CircuitBreaker *gobreaker.CircuitBreaker[ProducerResult]
	EventTopic     string
	DispatchTopic  string
}

func NewProducer() (*Producer, error) {
	client, err := sarama.NewSyncProducer([]string{config.Conf.KafkaBootstrapServer}, newSaramaConfig())
	if err != nil {
		logging.Logger.Error("Failed to create Kafka producer",
			zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to Kafka producer",
		zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
		zap.String("mechanism", mechanism()),
	)

	return NewProducerWithClient(client), nil
}

func NewProducerWithClient(client sarama.SyncProducer) *Producer {
	return &Producer{
		Client: client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[ProducerResult](circuitbreak.NewSettings(
			circuitbreak.KafkaProducerService,
			config.Conf.KafkaIntervalCB,
			config.Conf.KafkaConsecutiveFailuresCB,
			nil,
		)),
		EventTopic:    config.Conf.KafkaEventTopic,
		DispatchTopic: config.Conf.KafkaDispatchTopic,
	}
}

// Publish sends a campaign lifecycle event keyed by campaign id.
func (p *Producer) Publish(_ context.Context, event campaign.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, _, err = p.SendMessage(p.EventTopic, []byte(event.CampaignID), value)

	return err
}

// SendDispatchCommand hands a started campaign to the dispatch consumers.
func (p *Producer) SendDispatchCommand(_ context.Context, campaignID string) error {
	value, err := json.Marshal(DispatchCommand{CampaignID: campaignID, CreatedAt: time.Now()})
	if err != nil {
		return err
	}

	partition, offset, err := p.SendMessage(p.DispatchTopic, []byte(campaignID), value)
	if err != nil {
		return err
	}

	logging.Logger.Info("dispatch command sent",
		zap.String("campaign_id", campaignID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

// SendMessage sends a message to topic through the circuit breaker.
func (p *Producer) SendMessage(topic string, key, value []byte) (int32, int64, error) {
	result, err := p.CircuitBreaker.Execute(func() (ProducerResult, error) {
		return p.doSendMessage(topic, key, value)
	})
	if err != nil {
		return 0, 0, err
	}

	return result.Partition, result.Offset, nil
}

// Close closes the producer and releases all resources.
func (p *Producer) Close() error {
	err := p.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka producer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Kafka producer closed successfully")

	return nil
}

func (p *Producer) doSendMessage(topic string, key, value []byte) (ProducerResult, error) {
	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.Client.SendMessage(message)
	if err != nil {
		logging.Logger.Error("Failed to send message to Kafka",
			zap.String("topic", topic),
			zap.String("error", err.Error()),
		)

		return ProducerResult{}, err
	}

	logging.Logger.Debug("Message sent successfully",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return ProducerResult{Partition: partition, Offset: offset}, nil
}
