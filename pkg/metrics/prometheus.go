package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"QuotaGame/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal       prometheus.Counter
	lastPrice        prometheus.Gauge
	realizedVol      prometheus.Gauge
	budget           prometheus.Gauge
	estimateLatency  *prometheus.HistogramVec
	estimateProb     prometheus.Histogram
	settlementsTotal *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder whose collectors are registered with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "quotagame_ticks_total",
			Help: "Total number of price samples drawn",
		}),
		lastPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "quotagame_last_price",
			Help: "Last sampled price",
		}),
		realizedVol: f.NewGauge(prometheus.GaugeOpts{
			Name: "quotagame_realized_volatility",
			Help: "Annualized realized volatility of the trailing window",
		}),
		budget: f.NewGauge(prometheus.GaugeOpts{
			Name: "quotagame_budget",
			Help: "Budget after the last settlement",
		}),
		estimateLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotagame_estimate_duration_seconds",
				Help:    "Duration of barrier estimates",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cached"},
		),
		estimateProb: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotagame_estimate_probability",
			Help:    "Estimated hit probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		settlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagame_settlements_total",
				Help: "Settled rounds by outcome",
			},
			[]string{"outcome"},
		),
		transitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagame_round_transitions_total",
				Help: "Round phase transitions",
			},
			[]string{"from", "to"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagame_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotagame_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records one drawn sample.
func (r *Recorder) RecordTick(price float64) {
	r.ticksTotal.Inc()
	r.lastPrice.Set(price)
}

// RecordEstimate records the latency and result of one estimate.
func (r *Recorder) RecordEstimate(seconds, probability float64, cached bool) {
	label := "false"
	if cached {
		label = "true"
	}
	r.estimateLatency.WithLabelValues(label).Observe(seconds)
	r.estimateProb.Observe(probability)
}

// RecordSettlement records a settled round and the resulting budget.
func (r *Recorder) RecordSettlement(hit bool, budget float64) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.settlementsTotal.WithLabelValues(outcome).Inc()
	r.budget.Set(budget)
}

func (r *Recorder) RecordTransition(from, to models.Phase) {
	r.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Recorder) RecordRealizedVol(sigma float64) {
	r.realizedVol.Set(sigma)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
