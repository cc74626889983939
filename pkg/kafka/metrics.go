package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to reg, or returns the collector already registered under the same
// descriptor, so several producers can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

type producerMetrics struct {
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer, compression string, topics []string) *producerMetrics {
	if reg == nil {
		return nil
	}
	m := &producerMetrics{
		records: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotagame_kafka_produced_records_total",
			Help: "Records written per topic and outcome.",
		}, []string{"topic", "result"})),
		bytes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotagame_kafka_produced_bytes_total",
			Help: "Uncompressed payload bytes written per topic.",
		}, []string{"topic", "compression"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotagame_kafka_produce_seconds",
			Help:    "Time to write one record or batch.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"topic"})),
	}
	for _, t := range topics {
		if t == "" {
			continue
		}
		m.records.WithLabelValues(t, "ok")
		m.records.WithLabelValues(t, "error")
		m.bytes.WithLabelValues(t, compression)
	}
	return m
}

func (m *producerMetrics) observe(topic, compression string, n int, bytes int64, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.records.WithLabelValues(topic, result).Add(float64(n))
	m.bytes.WithLabelValues(topic, compression).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(seconds)
}

type consumerMetrics struct {
	handled *prometheus.CounterVec
	lag     *prometheus.GaugeVec
	latency *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		return nil
	}
	return &consumerMetrics{
		handled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotagame_kafka_consumed_records_total",
			Help: "Records handled per topic and outcome: ok, dlq or failed.",
		}, []string{"topic", "result"})),
		lag: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotagame_kafka_consumer_lag",
			Help: "Records behind the high watermark at the last fetch.",
		}, []string{"topic", "partition"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "quotagame_kafka_handle_seconds",
			Help: "Time to handle one record, retries included.",
		}, []string{"topic"})),
	}
}

func (m *consumerMetrics) result(topic, result string, seconds float64) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(seconds)
}
