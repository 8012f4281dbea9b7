package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/promatty/subtrackr/internal/api/handlers"
	"github.com/promatty/subtrackr/internal/api/middleware"
	"github.com/promatty/subtrackr/internal/config"
	"github.com/promatty/subtrackr/internal/jobs/inmemory"
	"github.com/promatty/subtrackr/internal/logger"
	"github.com/promatty/subtrackr/internal/plaid"
	"github.com/promatty/subtrackr/internal/roast"
	"github.com/promatty/subtrackr/internal/services"
	"github.com/promatty/subtrackr/internal/store/bigquery"
	syncjob "github.com/promatty/subtrackr/internal/sync"
)

func main() {
	log := logger.New("api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - report export will be disabled")
	}

	ctx := context.Background()

	registry, err := services.Load(cfg.ServicesTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load service table")
	}
	log.Info().Int("services", registry.Len()).Msg("Service table loaded")

	repo, err := bigquery.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction repository")
	}
	defer repo.Close()

	items, err := plaid.OpenItemStore(cfg.BoltPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open item store")
	}
	defer items.Close()

	plaidClient := plaid.NewClient(cfg.Plaid, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	syncer := syncjob.NewSyncer(plaidClient, items, repo, log)

	// Start worker in background to process sync jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting sync job worker")
		if err := jobQueue.Start(workerCtx, syncer.Handler()); err != nil {
			log.Error().Err(err).Msg("Sync job worker stopped with error")
		}
	}()

	// Initialize handlers
	subscriptionsHandler := handlers.NewSubscriptionsHandler(repo, registry, cfg.MinOccurrences, log)
	cancellationsHandler := handlers.NewCancellationsHandler(registry, log)
	linkHandler := handlers.NewLinkHandler(plaidClient, items, jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)
	roastHandler := handlers.NewRoastHandler(repo, registry, roast.NewGenerator(cfg.RoastModel), cfg.MinOccurrences, log)
	reportsHandler := handlers.NewReportsHandler(repo, registry, cfg.GCSBucket, cfg.MinOccurrences, log)

	// Create router
	mux := http.NewServeMux()

	// Subscriptions endpoints
	mux.HandleFunc("/api/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			subscriptionsHandler.ListSubscriptions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Cancellation lookup
	mux.HandleFunc("/api/cancellations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			cancellationsHandler.Lookup(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Bank item linking and sync
	mux.HandleFunc("/api/link", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			linkHandler.LinkItem(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			linkHandler.EnqueueSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Roast endpoint
	mux.HandleFunc("/api/roast", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			roastHandler.Roast(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Report export endpoint
	mux.HandleFunc("/api/reports/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			reportsHandler.Export(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.APIKey(cfg.APIKey)(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
