package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type funcHandler struct {
	topic string
	mu    sync.Mutex
	calls [][]byte
	fail  error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, b)
	return h.fail
}

func (h *funcHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

// chanReader serves records from a channel and remembers commits.
type chanReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error { return nil }

func (r *chanReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRegisterer(nil),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestProcess_RetriesThenParksOnDLQ(t *testing.T) {
	c := newTestConsumer(t, 2)
	h := &funcHandler{topic: "quotagame.commands", fail: errors.New("engine busy")}
	c.RegisterHandler(h)
	dlq := &memWriter{}
	c.dlq = dlq

	msg := kafka.Message{Topic: "quotagame.commands", Offset: 41, Key: []byte("s1"), Value: []byte(`{"type":"zoom"}`)}
	if !c.process(context.Background(), msg) {
		t.Fatal("record on the DLQ should be committable")
	}
	if h.count() != 3 {
		t.Fatalf("handler ran %d times, want 3", h.count())
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("dlq = %+v", dlq.msgs)
	}
	headers := map[string]string{}
	for _, hd := range dlq.msgs[0].Headers {
		headers[hd.Key] = string(hd.Value)
	}
	if headers["source_topic"] != "quotagame.commands" || headers["source_offset"] != "41" || headers["error"] != "engine busy" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestProcess_FailureWithoutDLQIsNotCommitted(t *testing.T) {
	c := newTestConsumer(t, 0)
	c.RegisterHandler(&funcHandler{topic: "t", fail: errors.New("boom")})
	if c.process(context.Background(), kafka.Message{Topic: "t"}) {
		t.Fatal("failed record committed without a DLQ")
	}

	c.dlq = &memWriter{err: errors.New("dlq down")}
	if c.process(context.Background(), kafka.Message{Topic: "t"}) {
		t.Fatal("record committed although the DLQ write failed")
	}
}

func TestProcess_HookRejectionIsNotRetried(t *testing.T) {
	c := newTestConsumer(t, 5)
	h := &funcHandler{topic: "t"}
	c.RegisterHandler(h)
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, b []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, b, &HookError{Code: "ERR_SCHEMA", Err: errors.New("no type")}
		},
	})
	c.dlq = &memWriter{}
	if !c.process(context.Background(), kafka.Message{Topic: "t"}) || h.count() != 0 {
		t.Fatalf("handler ran %d times", h.count())
	}
}

func TestProcess_RecoversHandlerPanic(t *testing.T) {
	c := newTestConsumer(t, 0)
	c.RegisterHandler(panicHandler{})
	if c.process(context.Background(), kafka.Message{Topic: "p"}) {
		t.Fatal("panicking record committed without a DLQ")
	}
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "p" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad command") }

func TestConsumer_CommitsInPartitionOrder(t *testing.T) {
	c := newTestConsumer(t, 0)
	h := &funcHandler{topic: "cmd"}
	c.RegisterHandler(h)
	reader := &chanReader{in: make(chan kafka.Message, 8)}
	c.newReader = func(string) fetcher { return reader }

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for off := int64(0); off < 5; off++ {
		reader.in <- kafka.Message{Topic: "cmd", Partition: 0, Offset: off, Value: []byte{byte('a' + off)}}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got := reader.commits()
	if len(got) != 5 {
		t.Fatalf("commits = %v", got)
	}
	for i, off := range got {
		if off != int64(i) {
			t.Fatalf("commits out of order: %v", got)
		}
	}
	if string(h.calls[0]) != "a" || string(h.calls[4]) != "e" {
		t.Fatalf("calls = %q", h.calls)
	}
}

func TestLaneOfAndBackoff(t *testing.T) {
	if laneOf(7, 3) != laneOf(7, 3) || laneOf(7, 3) != 1 || laneOf(-2, 3) != 2 {
		t.Fatal("lane mapping")
	}
	for attempt := 1; attempt < 40; attempt++ {
		d := backoff(10*time.Millisecond, 200*time.Millisecond, attempt)
		if d <= 0 || d > 200*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v", attempt, d)
		}
	}
}

func TestStartWithoutHandlers(t *testing.T) {
	if err := newTestConsumer(t, 0).Start(); err == nil {
		t.Fatal("start without handlers succeeded")
	}
	if _, err := NewConsumer(); !errors.Is(err, errNoBrokers) {
		t.Fatalf("err = %v", err)
	}
}
