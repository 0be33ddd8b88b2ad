package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// ConfluentProducer publishes messages and transactions to Kafka.
// Message events are keyed by room so each room's stream stays ordered
// within one partition; transaction events are keyed by sender.
type ConfluentProducer struct {
	producer *kafka.Producer
	msgTopic string
	txTopic  string
	logger   zerolog.Logger
	doneCh   chan struct{}
}

func NewConfluentProducer(brokers, msgTopic, txTopic string, logger zerolog.Logger) (*ConfluentProducer, error) {
	if err := ensureTopics(brokers, []string{msgTopic, txTopic}); err != nil {
		logger.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		msgTopic: msgTopic,
		txTopic:  txTopic,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopics(brokers string, topics []string) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	specs := make([]kafka.TopicSpecification, len(topics))
	for i, topic := range topics {
		specs[i] = kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		}
	}

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				cp.logger.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
			}
		}
	}
	close(cp.doneCh)
}

func (cp *ConfluentProducer) PublishMessage(ctx context.Context, msg *domain.Message) error {
	return cp.produce(cp.msgTopic, msg.RoomID, msg)
}

func (cp *ConfluentProducer) PublishTransaction(ctx context.Context, tx *domain.Transaction) error {
	return cp.produce(cp.txTopic, tx.FromUserID, tx)
}

func (cp *ConfluentProducer) produce(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	return nil
}

func (cp *ConfluentProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
