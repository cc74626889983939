package main

import (
	"strings"
	"testing"

	"QuotaGame/pkg/config"
)

func TestSummaryReportsQuoteShare(t *testing.T) {
	cfg := &config.Config{}
	cfg.Environment = "test"
	cfg.Simulation.Paths = 1000
	cfg.Simulation.Steps = 999
	cfg.Simulation.Workers = 2
	cfg.Simulation.MaxWork = 4000000

	got := summary(cfg)
	if !strings.Contains(got, "max_work=4000000 (25% used") {
		t.Fatalf("summary = %q", got)
	}

	cfg.Simulation.MaxWork = 0
	if got := summary(cfg); !strings.Contains(got, "max_work=unlimited") {
		t.Fatalf("summary = %q", got)
	}
}
