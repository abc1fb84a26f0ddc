// cmd/scout/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arbitrage-scout/internal/browser"
	"arbitrage-scout/internal/cache"
	"arbitrage-scout/internal/common/config"
	"arbitrage-scout/internal/common/database"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/export"
	"arbitrage-scout/internal/filters"
	"arbitrage-scout/internal/matcher"
	"arbitrage-scout/internal/models"
	"arbitrage-scout/internal/orchestrator"
	"arbitrage-scout/internal/scrapers"
	"arbitrage-scout/internal/similarity"
)

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	zapLog.Info("Starting arbitrage scout...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	// SIGINT/SIGTERM cancel the run context; the orchestrator treats that
	// as a STOP at the next control point.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.App.MetricsAddr, mux); err != nil {
			log.WithError(err).Warn("metrics endpoint failed", nil)
		}
	}()

	images, err := cache.New(cache.Options{
		RootDir:      cfg.Cache.RootDir,
		ImageTTL:     cfg.Cache.ImageTTL,
		MaxBytes:     cfg.Cache.MaxBytes,
		MaxEntries:   cfg.Cache.MaxEntries,
		FetchTimeout: cfg.Cache.FetchTimeout,
		Logger:       log,
	})
	if err != nil {
		zapLog.Fatal("image cache init failed", zap.Error(err))
	}
	defer images.Close()

	var semantic similarity.SemanticScorer
	if !cfg.Similarity.Simulate && cfg.Similarity.LLMAPIKey != "" {
		semantic = similarity.NewLLMScorer(similarity.LLMConfig{
			APIKey:  cfg.Similarity.LLMAPIKey,
			BaseURL: cfg.Similarity.LLMBaseURL,
			Model:   cfg.Similarity.LLMModel,
			Timeout: cfg.Similarity.LLMTimeout,
			Logger:  log,
		})
	}
	scorer := similarity.New(similarity.Config{
		HashThreshold: cfg.Similarity.HashThreshold,
		VisualWeight:  cfg.Similarity.VisualWeight,
		Simulate:      cfg.Similarity.Simulate,
	}, semantic, log)

	match := matcher.New(images, scorer, matcher.Config{
		ItemSimilarity: cfg.Matcher.ItemSimilarity,
		MinResolution:  cfg.Matcher.MinResolution,
		CanvasSize:     cfg.Matcher.CanvasSize,
		MaxRunnersUp:   cfg.Matcher.MaxRunnersUp,
	}, log)

	searcher, err := scrapers.NewSourcingClient(cfg.Sourcing, log)
	if err != nil {
		zapLog.Fatal("sourcing client init failed", zap.Error(err))
	}

	session, err := browser.Open(cfg.Browser, log)
	if err != nil {
		zapLog.Fatal("browser session init failed", zap.Error(err))
	}
	defer session.Close()

	runID := orchestrator.RunID("run", time.Now(), uuid.NewString()[:8])

	var control orchestrator.ControlSource
	if cfg.Redis.Address != "" {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			zapLog.Fatal("redis init failed", zap.Error(err))
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, control channel disabled", nil)
		} else {
			control = orchestrator.NewRedisControl(rdb, runID)
		}
	}

	var sink export.Sink = export.NoOpSink{}
	if cfg.Export.Enabled {
		es, err := database.NewElasticsearch(cfg.Export)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		sink = export.NewElasticsearchSink(es, cfg.Export, log)
	}

	var stores []models.StoreRecord
	if err := json.NewDecoder(os.Stdin).Decode(&stores); err != nil {
		zapLog.Fatal("store list decode failed", zap.Error(err))
	}

	orch := orchestrator.New(orchestrator.Deps{
		Scraper:  scrapers.NewMarketplaceScraper(session.Browser(), cfg.Scraper, log),
		Searcher: searcher,
		Matcher:  match,
		Filters:  filters.New(cfg.Filters.Store, cfg.Filters.Product),
		Control:  control,
		Logger:   log,
	}, cfg.Scraper, cfg.Filters.DryRun)

	enc := json.NewEncoder(os.Stdout)
	results, summaryCh := orch.Run(ctx, runID, stores)
	for result := range results {
		sink.ExportStore(ctx, runID, result)
		if err := enc.Encode(result); err != nil {
			log.WithError(err).Error("result write failed", nil)
		}
	}

	summary := <-summaryCh
	sink.ExportSummary(context.Background(), summary)
	if err := enc.Encode(summary); err != nil {
		log.WithError(err).Error("summary write failed", nil)
	}

	log.Info("scout finished", map[string]interface{}{
		"runId":       summary.RunID,
		"termination": string(summary.Termination),
	})
}
