package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promatty/subtrackr/internal/config"
	"github.com/promatty/subtrackr/internal/jobs"
	"github.com/promatty/subtrackr/internal/jobs/inmemory"
	"github.com/promatty/subtrackr/internal/logger"
	"github.com/promatty/subtrackr/internal/plaid"
	"github.com/promatty/subtrackr/internal/store/bigquery"
	syncjob "github.com/promatty/subtrackr/internal/sync"
)

// The worker periodically enqueues a sync job for every linked bank item so
// transaction data stays fresh without anyone hitting the API.
func main() {
	var interval = flag.Duration("interval", 6*time.Hour, "How often to sync all linked items")
	flag.Parse()

	log := logger.New("worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	syncer := syncjob.NewSyncer(plaidClient, items, repo, log)

	// In production the queue would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	if err := jobQueue.Start(ctx, syncer.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("interval", *interval).Msg("Worker service started")

	enqueueAll := func() {
		linked, err := items.ListItems()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list linked items")
			return
		}
		for _, item := range linked {
			job := &jobs.SyncTransactionsJob{
				UserID: item.UserID,
				ItemID: item.ItemID,
			}
			if err := jobQueue.PublishSync(ctx, job); err != nil {
				log.Error().Err(err).Str("item_id", item.ItemID).Msg("Failed to enqueue sync job")
				continue
			}
			log.Info().
				Str("job_id", job.JobID).
				Str("item_id", item.ItemID).
				Str("user_id", item.UserID).
				Msg("Enqueued sync job")
		}
	}

	// Sync once on startup, then on the interval.
	enqueueAll()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			enqueueAll()
		case <-quit:
			log.Info().Msg("Shutting down worker service...")

			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := jobQueue.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error during graceful shutdown")
			}
			if err := jobQueue.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close job queue")
			}

			log.Info().Msg("Worker service exited")
			return
		}
	}
}
