// Package sync runs the transaction ingestion pipeline: pull deltas from the
// banking provider for one linked item, store them, advance the cursor.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/promatty/subtrackr/internal/jobs"
	"github.com/promatty/subtrackr/internal/plaid"
	"github.com/promatty/subtrackr/internal/store/bigquery"
)

// Syncer executes sync jobs.
type Syncer struct {
	client *plaid.Client
	items  *plaid.ItemStore
	repo   bigquery.TransactionRepository
	log    zerolog.Logger
}

// NewSyncer wires the provider client, item store and transaction store
// into a job executor.
func NewSyncer(client *plaid.Client, items *plaid.ItemStore, repo bigquery.TransactionRepository, log zerolog.Logger) *Syncer {
	return &Syncer{
		client: client,
		items:  items,
		repo:   repo,
		log:    log,
	}
}

// Run syncs one item. The cursor only advances after the pulled transactions
// are stored, so a failed insert re-pulls the same window on retry rather
// than losing it.
func (s *Syncer) Run(ctx context.Context, job *jobs.SyncTransactionsJob) error {
	item, err := s.items.GetItem(job.ItemID)
	if err != nil {
		return fmt.Errorf("sync: loading item %s: %w", job.ItemID, err)
	}

	result, err := s.client.SyncTransactions(ctx, item.UserID, item.AccessToken, item.Cursor)
	if err != nil {
		return fmt.Errorf("sync: pulling transactions for item %s: %w", job.ItemID, err)
	}

	txns := result.AllTransactions()
	if len(txns) > 0 {
		if err := s.repo.InsertTransactions(ctx, txns); err != nil {
			return fmt.Errorf("sync: storing %d transactions: %w", len(txns), err)
		}
	}

	if err := s.items.AdvanceCursor(item.ItemID, result.NextCursor); err != nil {
		return fmt.Errorf("sync: advancing cursor for item %s: %w", job.ItemID, err)
	}

	s.log.Info().
		Str("job_id", job.JobID).
		Str("item_id", job.ItemID).
		Int("stored", len(txns)).
		Int("removed", len(result.RemovedIDs)).
		Msg("Sync job completed")

	return nil
}

// Handler adapts the Syncer to the generic job handler signature.
func (s *Syncer) Handler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		syncJob, ok := job.(*jobs.SyncTransactionsJob)
		if !ok {
			return fmt.Errorf("sync: unexpected job type: %T", job)
		}
		return s.Run(ctx, syncJob)
	}
}
