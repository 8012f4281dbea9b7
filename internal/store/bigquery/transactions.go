package bigquery

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/promatty/subtrackr/internal/domain"
)

const (
	datasetID         = "subtrackr"
	transactionsTable = "transactions"
)

// projectID resolves the GCP project from the standard environment variable.
func projectID() string {
	if p := os.Getenv("GOOGLE_CLOUD_PROJECT"); p != "" {
		return p
	}
	return bigquery.DetectProjectID
}

// TransactionRepository is the store interface the API layer consumes.
type TransactionRepository interface {
	// InsertTransactions appends a batch of transactions. Duplicate
	// external IDs are tolerated; reads collapse them to the latest row.
	InsertTransactions(ctx context.Context, txns []domain.Transaction) error

	// ListUserTransactions returns all of one user's transactions ordered
	// by posted date descending.
	ListUserTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)

	Close() error
}

// Repository is the BigQuery-backed TransactionRepository. It holds a shared
// client to avoid reconnecting per operation.
type Repository struct {
	client *bigquery.Client
}

// NewRepository creates a Repository with a shared BigQuery client.
func NewRepository(ctx context.Context) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID())
	if err != nil {
		return nil, fmt.Errorf("bigquery: creating client: %w", err)
	}
	return &Repository{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertTransactions implements TransactionRepository using the streaming
// inserter. The table treats external_id as the natural key; dedup happens
// at read time so inserts stay idempotent-in-effect without a MERGE.
func (r *Repository) InsertTransactions(ctx context.Context, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, len(txns))
	for i, t := range txns {
		rows[i] = FromDomain(t)
	}

	table := r.client.Dataset(datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("bigquery: inserting %d transactions: %w", len(rows), err)
	}
	return nil
}

// ListUserTransactions implements TransactionRepository. Re-synced rows that
// share an external_id collapse to the most recently ingested one.
func (r *Repository) ListUserTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	q := r.client.Query(`
		SELECT
			t.external_id,
			t.user_id,
			t.account_id,
			t.transaction_date,
			t.amount,
			t.name,
			t.merchant_name,
			t.is_pending,
			t.created_ts,
			t.updated_ts
		FROM subtrackr.transactions t
		WHERE t.user_id = @user_id
		QUALIFY ROW_NUMBER() OVER (
			PARTITION BY t.external_id ORDER BY t.created_ts DESC
		) = 1
		ORDER BY t.transaction_date DESC, t.created_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: listing transactions for %q: %w", userID, err)
	}

	var txns []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: iterating transactions: %w", err)
		}
		txns = append(txns, row.ToDomain())
	}
	return txns, nil
}

// Ensure Repository implements the store interface.
var _ TransactionRepository = (*Repository)(nil)
