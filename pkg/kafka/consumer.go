package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "QuotaGame/pkg/logger"
)

// MessageHandler handles the records of one topic. A nil error commits the record.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type recordWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics through a consumer group. Each fetched record goes
// to the lane of its partition; a lane handles one record at a time, retries failures
// with backoff, parks exhausted ones on the DLQ and then commits.
type Consumer struct {
	cfg      ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]fetcher
	lanes    []chan kafka.Message
	dlq      recordWriter
	hook     ConsumerHook
	metrics  *consumerMetrics
	log      *applogger.Logger

	newReader func(topic string) fetcher
	cancel    context.CancelFunc
	fetchWG   sync.WaitGroup
	laneWG    sync.WaitGroup
	stopOnce  sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]fetcher),
		hook:     NoopHook{},
		metrics:  newConsumerMetrics(cfg.Registerer),
		log:      cfg.Logger,
	}
	if c.log == nil {
		c.log = applogger.NewNop()
	}
	c.newReader = func(topic string) fetcher {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler routes a topic to h. Registering a topic twice keeps the first handler.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook wraps every record's handling in h.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens a reader per registered topic and starts the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.lanes = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.laneWG.Add(1)
		go c.runLane(ctx, c.lanes[i])
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(ctx, topic, r)
	}
	c.log.Info("kafka consumer: started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("lanes", len(c.lanes)))
	return nil
}

func (c *Consumer) fetch(ctx context.Context, topic string, r fetcher) {
	defer c.fetchWG.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		if c.metrics != nil && msg.HighWaterMark > 0 {
			c.metrics.lag.WithLabelValues(topic, strconv.Itoa(msg.Partition)).Set(float64(msg.HighWaterMark - msg.Offset - 1))
		}
		select {
		case c.lanes[laneOf(msg.Partition, len(c.lanes))] <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func laneOf(partition, lanes int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % lanes
}

func (c *Consumer) runLane(ctx context.Context, in <-chan kafka.Message) {
	defer c.laneWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-in:
			if c.process(ctx, msg) {
				c.commit(msg)
			}
		}
	}
}

// process handles one record and reports whether its offset may be committed: after
// success, or once the record is safely on the DLQ.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	start := time.Now()
	h, ok := c.handlers[msg.Topic]
	if !ok {
		return true
	}

	err := c.handleWithRetry(ctx, h, msg)
	if err == nil {
		c.metrics.result(msg.Topic, "ok", time.Since(start).Seconds())
		return true
	}
	if ctx.Err() != nil {
		// shutting down; the record is redelivered to the next member
		return false
	}

	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		// hook chains report their own rejections
		c.hook.OnError(ctx, msg.Topic, msg, msg.Value, err)
	}
	c.log.Error("kafka consumer: record failed",
		applogger.String("topic", msg.Topic),
		applogger.Int("partition", msg.Partition),
		applogger.Int64("offset", msg.Offset),
		applogger.Error(err))

	if c.dlq == nil {
		c.metrics.result(msg.Topic, "failed", time.Since(start).Seconds())
		return false
	}
	parked := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now().UTC(),
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(err.Error())}),
	}
	if derr := c.dlq.WriteMessages(ctx, parked); derr != nil {
		c.log.Error("kafka consumer: dlq write", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(derr))
		c.metrics.result(msg.Topic, "failed", time.Since(start).Seconds())
		return false
	}
	c.metrics.result(msg.Topic, "dlq", time.Since(start).Seconds())
	return true
}

func (c *Consumer) handleWithRetry(ctx context.Context, h MessageHandler, msg kafka.Message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(ctx, h, msg)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		var hookErr *HookError
		if errors.As(err, &hookErr) {
			// a rejected record fails the same way every time
			return err
		}
		if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) handleOnce(ctx context.Context, h MessageHandler, msg kafka.Message) (err error) {
	hctx, hmsg, data, err := c.hook.BeforeHandle(ctx, msg.Topic, msg, msg.Value)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		c.hook.AfterHandle(hctx, msg.Topic, hmsg, data, err)
	}()
	return h.Handle(hctx, data)
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		if attempt == 3 {
			c.log.Error("kafka consumer: commit",
				applogger.String("topic", msg.Topic),
				applogger.Int64("offset", msg.Offset),
				applogger.Error(err))
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
}

// Stop cancels fetching, lets lanes finish the record in hand and closes the readers.
// Records still queued in a lane are not committed and will be redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.fetchWG.Wait()
			c.laneWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka consumer: close dlq", applogger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer: stopped")
	})
	return err
}

// backoff doubles from min per attempt up to max and subtracts up to half as jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt < 32 {
		if exp := min << (attempt - 1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d / 2); half > 0 {
		d -= time.Duration(rand.Int64N(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
