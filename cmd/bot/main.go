package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandlens/visibility-bot/internal/allocation"
	"github.com/brandlens/visibility-bot/internal/analysis"
	"github.com/brandlens/visibility-bot/internal/archive"
	"github.com/brandlens/visibility-bot/internal/config"
	"github.com/brandlens/visibility-bot/internal/extraction"
	"github.com/brandlens/visibility-bot/internal/gateway"
	"github.com/brandlens/visibility-bot/internal/health"
	"github.com/brandlens/visibility-bot/internal/notifications"
	"github.com/brandlens/visibility-bot/internal/scheduler"
	"github.com/brandlens/visibility-bot/internal/stats"
	"github.com/brandlens/visibility-bot/internal/store"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting BrandLens Visibility Bot")

	// Initialize persistence
	db, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Session archive is optional; without a storage account, batch summaries
	// only live in the database.
	var sessionArchive archive.Archive
	if cfg.StorageAccount != "" {
		sessionArchive, err = archive.NewAzureArchive(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize session archive: %v", err)
		}
	} else {
		logrus.Info("No storage account configured, session archiving disabled")
	}

	// Initialize notification services
	notificationService := notifications.NewService(cfg)

	// Initialize the analysis pipeline
	gatewayClient := gateway.NewClient()
	allocator := allocation.NewAllocator(rand.New(rand.NewSource(time.Now().UnixNano())))
	extractor := extraction.NewExtractor(cfg.MentionContextRadius)

	orchestrator := analysis.NewOrchestrator(
		db,
		gatewayClient,
		allocator,
		extractor,
		sessionArchive,
		cfg.AnalysisWorkers,
		time.Duration(cfg.AnalysisTimeoutSeconds)*time.Second,
	)

	aggregator := stats.NewAggregator(db, notificationService)
	monitor := health.NewMonitor(db, gatewayClient, notificationService, time.Duration(cfg.ProbeTimeoutSeconds)*time.Second)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, orchestrator, aggregator, monitor)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health checks and manual triggers
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Metrics endpoint
	router.HandleFunc("/metrics", metricsHandler(orchestrator)).Methods("GET")

	// Manual trigger endpoints (for testing and operations)
	router.HandleFunc("/trigger", triggerHandler(orchestrator, aggregator, cfg)).Methods("POST")
	router.HandleFunc("/recalculate", recalculateHandler(aggregator, cfg)).Methods("POST")
	router.HandleFunc("/healthcheck", providerCheckHandler(monitor)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(orchestrator *analysis.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(orchestrator.GetMetrics()))
	}
}

type triggerRequest struct {
	BrandIDs       []string `json:"brand_ids"`
	PromptIDs      []string `json:"prompt_ids"`
	FailedOnly     bool     `json:"failed_only"`
	ForceReanalyze bool     `json:"force_reanalyze"`
}

func triggerHandler(orchestrator *analysis.Orchestrator, aggregator *stats.Aggregator, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if r.Body != nil {
			// An empty body means "analyze everything".
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		go func() {
			ctx := context.Background()

			if len(req.BrandIDs) == 0 {
				results, err := orchestrator.RunAll(ctx, req.ForceReanalyze)
				if err != nil {
					logrus.Errorf("Manual batch trigger failed: %v", err)
					return
				}
				for _, result := range results {
					if _, err := aggregator.RecalculateWindow(ctx, result.BrandID, cfg.StatsWindowDays, ""); err != nil {
						logrus.Errorf("Recalculation for brand %s failed: %v", result.BrandID, err)
					}
				}
				return
			}

			filter := analysis.Filter{PromptIDs: req.PromptIDs, FailedOnly: req.FailedOnly}
			for _, brandID := range req.BrandIDs {
				if _, err := orchestrator.RunBatch(ctx, brandID, filter, req.ForceReanalyze, ""); err != nil {
					logrus.Errorf("Manual batch for brand %s failed: %v", brandID, err)
					continue
				}
				if _, err := aggregator.RecalculateWindow(ctx, brandID, cfg.StatsWindowDays, ""); err != nil {
					logrus.Errorf("Recalculation for brand %s failed: %v", brandID, err)
				}
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Batch analysis triggered successfully"}`))
	}
}

type recalculateRequest struct {
	BrandID    string `json:"brand_id"`
	WindowDays int    `json:"window_days"`
	Provider   string `json:"provider"`
}

func recalculateHandler(aggregator *stats.Aggregator, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recalculateRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		windowDays := req.WindowDays
		if windowDays <= 0 {
			windowDays = cfg.StatsWindowDays
		}

		go func() {
			ctx := context.Background()
			if req.BrandID == "" {
				if err := aggregator.RecalculateAll(ctx, windowDays, req.Provider); err != nil {
					logrus.Errorf("Manual recalculation failed: %v", err)
				}
				return
			}
			if _, err := aggregator.RecalculateWindow(ctx, req.BrandID, windowDays, req.Provider); err != nil {
				logrus.Errorf("Manual recalculation for brand %s failed: %v", req.BrandID, err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Recalculation triggered successfully"}`))
	}
}

type providerCheckRequest struct {
	ProviderID string `json:"provider_id"`
}

func providerCheckHandler(monitor *health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerCheckRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		w.Header().Set("Content-Type", "application/json")

		// A single provider is checked synchronously so the caller sees the
		// probe result; a full sweep runs in the background.
		if req.ProviderID != "" {
			ok, message := monitor.CheckOne(r.Context(), req.ProviderID)
			w.WriteHeader(http.StatusOK)
			resp, _ := json.Marshal(map[string]interface{}{"provider_id": req.ProviderID, "healthy": ok, "message": message})
			w.Write(resp)
			return
		}

		go func() {
			if _, err := monitor.CheckAll(context.Background()); err != nil {
				logrus.Errorf("Manual health check failed: %v", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Health check triggered successfully"}`))
	}
}
