package main

import (
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/gapfinder/internal/adapters/census"
	"github.com/samirrijal/gapfinder/internal/adapters/openai"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/config"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/workflows"
)

func main() {
	cfg, err := config.Load("gapfinder-analyzer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "gapfinder-analyzer")

	censusClient := census.New(census.Config{
		GeocoderURL: cfg.Census.GeocoderURL,
		StatsURL:    cfg.Census.StatsURL,
		APIKey:      cfg.Census.APIKey,
		Year:        cfg.Census.Year,
		Timeout:     time.Duration(cfg.Census.Timeout) * time.Second,
	})
	enricher := usecases.NewEnricher(usecases.NewDemographicsService(censusClient, censusClient), 8)
	recommendations := usecases.NewRecommendationService(openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model), enricher)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.AnalysisWorkflow)
	w.RegisterActivity(&workflows.AnalysisActivities{Recommendations: recommendations})

	slog.Info("analyzer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
