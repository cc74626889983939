package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if c.Game.TickPeriod != 10*time.Millisecond || c.Game.StartPrice != 100 || c.Game.Volatility != 0.1474 {
		t.Fatalf("game = %+v", c.Game)
	}
	if c.Round.Budget != 10000 || c.Round.Stake != 1000 || c.Round.StakeMin != 100 || c.Round.StakeMax != 5000 {
		t.Fatalf("round = %+v", c.Round)
	}
	if c.View.ScaleY != 50000 || c.View.ScaleMin != 1000 || c.View.ScaleMax != 200000 {
		t.Fatalf("view = %+v", c.View)
	}
	if dt := c.DT(); dt < 3.17e-10 || dt > 3.18e-10 {
		t.Fatalf("dt = %v", dt)
	}
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	c, err := Parse([]byte("environment: test\nsimulation:\n  paths: 500\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Simulation.Paths != 500 {
		t.Fatalf("paths = %d", c.Simulation.Paths)
	}
	if c.Simulation.PayoutCap != 100 || c.Backend.Type != "none" || c.Kafka.Topics.Commands != "quotagame.commands" {
		t.Fatalf("defaults lost: %+v", c.Simulation)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "backend:\n  type: s3\n"},
		{"kafka without brokers", "backend:\n  type: kafka\n"},
		{"stake outside bounds", "round:\n  stake: 9000\n"},
		{"inverted zoom clamp", "view:\n  scale_min: 5000\n  scale_max: 10\n"},
		{"negative volatility", "game:\n  volatility: -0.1\n"},
		{"quote work over limit", "simulation:\n  paths: 100000\n  steps: 1000\n  max_work: 1000000\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"BACKEND":          "kafka",
		"KAFKA_BROKERS":    "a:9092,b:9092",
		"QUOTA_PORT":       "9090",
		"QUOTA_VOLATILITY": "0.3",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Backend.Type != "kafka" || len(c.Kafka.Brokers) != 2 || c.Server.Port != 9090 || c.Game.Volatility != 0.3 {
		t.Fatalf("env not applied: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := c.applyEnv(func(k string) string {
		if k == "QUOTA_PORT" {
			return "http"
		}
		return ""
	}); err == nil {
		t.Fatal("expected a port parse error")
	}
}

func TestLoadShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("config/config.yaml not present")
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "development" || c.Cache.Type != "memory" {
		t.Fatalf("config = %+v", c)
	}
}
