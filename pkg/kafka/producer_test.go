package kafka

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

func TestEncode(t *testing.T) {
	raw := json.RawMessage(`{"round":3}`)
	for _, tc := range []struct {
		name string
		in   interface{}
		want string
	}{
		{"bytes pass through", []byte("plain"), "plain"},
		{"raw json", raw, `{"round":3}`},
		{"struct", struct {
			Phase string `json:"phase"`
		}{"settled"}, `{"phase":"settled"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := encode(tc.in)
			if err != nil || string(b) != tc.want {
				t.Fatalf("encode = %q, %v", b, err)
			}
		})
	}
	if _, err := encode(make(chan int)); err == nil {
		t.Fatal("channel encoded")
	}
}

func TestCompressionCodec(t *testing.T) {
	if c, ok := compressionCodec("snappy"); !ok || c != kafka.Snappy {
		t.Fatalf("snappy = %v, %v", c, ok)
	}
	if _, ok := compressionCodec("brotli"); ok {
		t.Fatal("unknown codec accepted")
	}
}

func TestNewProducer_RegistersTopicSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithTopics("quotagame.samples", "", "quotagame.logs"),
		WithRegisterer(reg),
	)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer p.Close()

	if n := testutil.CollectAndCount(p.metrics.records); n != 4 {
		t.Fatalf("record series = %d, want 4", n)
	}
	// a second producer on the same registry shares the collectors
	q, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithRegisterer(reg))
	if err != nil {
		t.Fatalf("second producer: %v", err)
	}
	defer q.Close()
	if q.metrics.records != p.metrics.records {
		t.Fatal("collectors not shared")
	}
	if _, err := NewProducer(); err == nil {
		t.Fatal("producer without brokers")
	}
}
