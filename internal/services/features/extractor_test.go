package features

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/services/gbm"
)

func TestLogReturns(t *testing.T) {
	samples := []models.PriceSample{{Value: 100}, {Value: 110}, {Value: 99}}
	rets := LogReturns(samples)
	if len(rets) != 2 {
		t.Fatalf("len = %d", len(rets))
	}
	if math.Abs(rets[0]-math.Log(1.1)) > 1e-12 {
		t.Fatalf("r0 = %v", rets[0])
	}
	if r := LogReturns([]models.PriceSample{{Value: 0}, {Value: 5}}); r[0] != 0 {
		t.Fatalf("return from zero = %v", r[0])
	}
	if LogReturns(samples[:1]) != nil {
		t.Fatalf("expected nil for a single sample")
	}
}

func TestRealizedVolatilityOfFlatSeriesIsZero(t *testing.T) {
	if v := RealizedVolatility([]float64{0, 0, 0, 0}, 3, 1000); v != 0 {
		t.Fatalf("vol = %v", v)
	}
	if v := RealizedVolatility(nil, 10, 1000); v != 0 {
		t.Fatalf("vol of empty = %v", v)
	}
}

func TestRealizedVolatilityRecoversProcessSigma(t *testing.T) {
	period := 10 * time.Millisecond
	tpy := TicksPerYear(period)
	p := gbm.New(100, gbm.Params{Drift: 0, Volatility: 0.3, DT: 1 / tpy}, gbm.WithSource(rand.NewPCG(5, 8)))
	for i := 0; i < 20000; i++ {
		p.Advance(time.Time{})
	}
	st := Stats(p.Window(20001), 20000, period, 0.3)
	if math.Abs(st.RealizedVolatility-0.3) > 0.02 {
		t.Fatalf("realized vol = %v, want about 0.3", st.RealizedVolatility)
	}
	if st.Samples != 20001 || st.ConfiguredVol != 0.3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTicksPerYear(t *testing.T) {
	if got := TicksPerYear(time.Second); got != 365*24*60*60 {
		t.Fatalf("ticks per year = %v", got)
	}
	if TicksPerYear(0) != 0 {
		t.Fatalf("zero period")
	}
}

func TestRealizedDriftTracksProcessDrift(t *testing.T) {
	period := time.Second
	tpy := TicksPerYear(period)
	// a strong drift keeps the estimate well clear of sampling noise
	p := gbm.New(100, gbm.Params{Drift: 2000, Volatility: 0.2, DT: 1 / tpy}, gbm.WithSource(rand.NewPCG(3, 4)))
	for i := 0; i < 50000; i++ {
		p.Advance(time.Time{})
	}
	rets := LogReturns(p.Window(50001))
	drift := RealizedDrift(rets, len(rets), tpy)
	if math.Abs(drift-2000) > 400 {
		t.Fatalf("realized drift = %v, want about 2000", drift)
	}
	if RealizedDrift(rets[:1], 10, tpy) != 0 {
		t.Fatal("drift from one return")
	}
}
