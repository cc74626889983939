package repository

import (
	"context"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/domain/repository"
	pkgkafka "QuotaGame/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by session so one
// session's records stay ordered within a partition.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	samplesTopic     string
	settlementsTopic string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, samplesTopic, settlementsTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, samplesTopic: samplesTopic, settlementsTopic: settlementsTopic}
}

func (p *KafkaPublisher) PublishSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.samplesTopic, sampleMessages(sessionID, samples))
}

func sampleMessages(sessionID string, samples []models.PriceSample) []pkgkafka.Message {
	msgs := make([]pkgkafka.Message, len(samples))
	for i, s := range samples {
		msgs[i] = pkgkafka.Message{
			Key: []byte(sessionID),
			Value: map[string]interface{}{
				"session_id": sessionID,
				"i":          s.Index,
				"t":          s.At.UnixMilli(),
				"v":          s.Value,
			},
		}
	}
	return msgs
}

func (p *KafkaPublisher) PublishSettlement(ctx context.Context, s *models.Settlement) error {
	return p.producer.Publish(ctx, p.settlementsTopic, []byte(s.SessionID), s)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
