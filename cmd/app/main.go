package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"QuotaGame/internal/di"
	"QuotaGame/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	check := flag.Bool("check", false, "validate the config, print the quote budget and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *check {
		fmt.Println(summary(cfg))
		return
	}
	log.Print(summary(cfg))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT or SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

// summary reports what one quote costs against the configured work limit.
func summary(cfg *config.Config) string {
	work := int64(cfg.Simulation.Paths) * int64(cfg.Simulation.Steps+1)
	limit := "unlimited"
	if cfg.Simulation.MaxWork > 0 {
		limit = fmt.Sprintf("%d (%.0f%% used by a full-horizon quote)", cfg.Simulation.MaxWork,
			100*float64(work)/float64(cfg.Simulation.MaxWork))
	}
	return fmt.Sprintf("env=%s port=%d backend=%s cache=%s paths=%d steps=%d workers=%d max_work=%s",
		cfg.Environment, cfg.Server.Port, cfg.Backend.Type, cfg.Cache.Type,
		cfg.Simulation.Paths, cfg.Simulation.Steps, cfg.Simulation.Workers, limit)
}
