package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/gapfinder/internal/adapters/census"
	"github.com/samirrijal/gapfinder/internal/adapters/http"
	natsadapter "github.com/samirrijal/gapfinder/internal/adapters/nats"
	"github.com/samirrijal/gapfinder/internal/adapters/openai"
	"github.com/samirrijal/gapfinder/internal/adapters/places"
	"github.com/samirrijal/gapfinder/internal/adapters/postgres"
	"github.com/samirrijal/gapfinder/internal/adapters/valkey"
	"github.com/samirrijal/gapfinder/internal/core/ports"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/config"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
	"github.com/samirrijal/gapfinder/internal/pkg/logging"
	"github.com/samirrijal/gapfinder/internal/pkg/telemetry"
)

// Concurrent demographics lookups per enrichment batch.
const enrichWidth = 8

func main() {
	cfg, err := config.Load("gapfinder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, "gapfinder-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Search log is optional; without a database the recent-searches
	// endpoint answers 503.
	var (
		db        *postgres.DB
		searchLog ports.SearchLogRepository
	)
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		searchLog = postgres.NewSearchLogRepo(db)
	}

	// Cache
	var placesCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, places results will not be cached", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		placesCache = cache
	}

	// NATS
	var (
		natsConn  *nats.Conn
		publisher ports.EventPublisher
	)
	natsConn, err = connectNATS(ctx, cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, search events disabled", "error", err)
	} else {
		pub, err := natsadapter.NewPublisher(natsConn)
		if err != nil {
			slog.Warn("jetstream unavailable, search events disabled", "error", err)
		} else {
			publisher = pub
		}
		defer natsConn.Drain()
	}

	// Upstreams
	censusClient := census.New(census.Config{
		GeocoderURL: cfg.Census.GeocoderURL,
		StatsURL:    cfg.Census.StatsURL,
		APIKey:      cfg.Census.APIKey,
		Year:        cfg.Census.Year,
		Timeout:     time.Duration(cfg.Census.Timeout) * time.Second,
	})
	placesClient := places.New(cfg.Places.APIKey)
	recommender := openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	// Use cases
	demographics := usecases.NewDemographicsService(censusClient, censusClient)
	enricher := usecases.NewEnricher(demographics, enrichWidth)
	recommendations := usecases.NewRecommendationService(recommender, enricher)
	searches := usecases.NewSearchOrchestrator(placesClient, enricher, placesCache, publisher, searchLog, usecases.SearchOptions{
		MinInterval:     cfg.Search.MinInterval(),
		QuotaCooldown:   cfg.Search.QuotaCooldown(),
		CoverageRadiusM: geospatial.MilesToMeters(cfg.Search.CoverageRadiusMi),
		MaxRadiusM:      cfg.Search.MaxSearchRadiusM,
		CacheTTLSeconds: cfg.Search.PlacesCacheTTLSec,
	})

	deps := &http.Dependencies{
		Demographics:    demographics,
		Recommendations: recommendations,
		Searches:        searches,
		SearchLog:       searchLog,
		NATS:            natsConn,
		DB:              db,
		Cache:           cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "gapfinder API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		ExposeHeaders:    "X-Request-ID, X-Search-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// connectNATS bounds the startup wait so a missing broker only disables
// search events.
func connectNATS(ctx context.Context, url string) (*nats.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return natsadapter.Connect(ctx, url)
}
