package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

// NewKafkaProducer connects a synchronous producer, waiting for the brokers to come up.
func NewKafkaProducer(ctx context.Context, brokers []string, logger core.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	var (
		producer sarama.SyncProducer
		err      error
	)
	maxAttempts := 10
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			return producer, nil
		}
		logger.Warn("waiting for kafka", err, map[string]interface{}{"attempt": attempts})

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "connecting to kafka")
		case <-time.After(time.Duration(attempts) * 500 * time.Millisecond):
		}
	}
	return nil, errors.Wrap(err, "connecting to kafka")
}

// KafkaPublisher publishes ledger events as JSON, keyed by organization so that
// an organization's events keep their order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   core.Logger
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger core.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(_ context.Context, events ...core.LedgerEvent) {
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			p.logger.Error("marshalling ledger event", errors.Wrap(err, "eventsvc.Publish"))
			continue
		}

		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(evt.OrganizationID),
			Value: sarama.ByteEncoder(data),
			Headers: []sarama.RecordHeader{
				{Key: []byte("type"), Value: []byte(evt.Type)},
			},
		}
		if _, _, err = p.producer.SendMessage(msg); err != nil {
			p.logger.Error("sending ledger event", errors.Wrap(err, "eventsvc.Publish"),
				map[string]interface{}{"type": evt.Type, "fee_id": evt.FeeID})
		}
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
