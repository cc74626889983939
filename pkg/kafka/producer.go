package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record for PublishBatch.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer writes JSON records. It is safe for concurrent use.
type Producer struct {
	writer  *kafka.Writer
	codec   string
	metrics *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}
	if codec, ok := compressionCodec(cfg.Compression); ok {
		w.Compression = codec
	}

	p := &Producer{writer: w, codec: cfg.Compression, metrics: newProducerMetrics(cfg.Registerer, cfg.Compression, cfg.Topics)}
	if cfg.Async {
		w.Completion = func(msgs []kafka.Message, err error) {
			if len(msgs) > 0 && err != nil {
				p.metrics.observe(msgs[0].Topic, p.codec, len(msgs), 0, 0, err)
			}
		}
	}
	return p, nil
}

// Publish writes one record.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch writes records to topic in one call. Nothing is written if any value
// fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()
	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		b, err := encode(m.Value)
		if err != nil {
			return fmt.Errorf("encode record %d for %s: %w", i, topic, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: b, Time: now, Headers: jsonHeaders}
		size += int64(len(b))
	}

	err := p.writer.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.codec, len(out), size, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(out), topic, err)
	}
	return nil
}

// PublishMessage writes one unkeyed record. It backs the log collector.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

var jsonHeaders = []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}

func encode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case json.RawMessage:
		return val, nil
	}
	return json.Marshal(v)
}

func compressionCodec(name string) (kafka.Compression, bool) {
	switch name {
	case "gzip":
		return kafka.Gzip, true
	case "snappy":
		return kafka.Snappy, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	}
	return 0, false
}
