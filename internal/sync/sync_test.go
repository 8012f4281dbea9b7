package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/promatty/subtrackr/internal/config"
	"github.com/promatty/subtrackr/internal/domain"
	"github.com/promatty/subtrackr/internal/jobs"
	"github.com/promatty/subtrackr/internal/plaid"
)

// fakeRepo records inserted transactions and can be told to fail.
type fakeRepo struct {
	inserted []domain.Transaction
	failNext bool
}

func (f *fakeRepo) InsertTransactions(ctx context.Context, txns []domain.Transaction) error {
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("insert failed")
	}
	f.inserted = append(f.inserted, txns...)
	return nil
}

func (f *fakeRepo) ListUserTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return f.inserted, nil
}

func (f *fakeRepo) Close() error { return nil }

type syncPage struct {
	Added []map[string]interface{} `json:"added"`
	// Cursor handling is what the pipeline is responsible for.
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func newSyncServer(t *testing.T, page syncPage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(page)
	}))
}

func newTestItems(t *testing.T) *plaid.ItemStore {
	t.Helper()
	items, err := plaid.OpenItemStore(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("OpenItemStore error: %v", err)
	}
	t.Cleanup(func() { items.Close() })
	return items
}

func TestSyncerRun(t *testing.T) {
	srv := newSyncServer(t, syncPage{
		Added: []map[string]interface{}{
			{"transaction_id": "t1", "amount": 15.99, "date": "2024-03-15", "name": "NETFLIX.COM"},
		},
		NextCursor: "cursor-next",
	})
	defer srv.Close()

	items := newTestItems(t)
	if err := items.SaveItem(&plaid.Item{ItemID: "item-1", UserID: "user-1", AccessToken: "tok"}); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}

	repo := &fakeRepo{}
	client := plaid.NewClient(config.PlaidConfig{BaseURL: srv.URL}, zerolog.Nop())
	syncer := NewSyncer(client, items, repo, zerolog.Nop())

	job := &jobs.SyncTransactionsJob{JobID: "job-1", UserID: "user-1", ItemID: "item-1"}
	if err := syncer.Run(context.Background(), job); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d transactions, want 1", len(repo.inserted))
	}
	if repo.inserted[0].UserID != "user-1" {
		t.Errorf("inserted user = %q, want user-1", repo.inserted[0].UserID)
	}

	item, err := items.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	if item.Cursor != "cursor-next" {
		t.Errorf("cursor = %q, want cursor-next", item.Cursor)
	}
	if item.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not stamped after sync")
	}
}

func TestSyncerRun_MissingItem(t *testing.T) {
	items := newTestItems(t)
	client := plaid.NewClient(config.PlaidConfig{BaseURL: "http://127.0.0.1:0"}, zerolog.Nop())
	syncer := NewSyncer(client, items, &fakeRepo{}, zerolog.Nop())

	job := &jobs.SyncTransactionsJob{JobID: "job-1", UserID: "user-1", ItemID: "ghost"}
	if err := syncer.Run(context.Background(), job); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestSyncerRun_CursorHeldOnInsertFailure(t *testing.T) {
	srv := newSyncServer(t, syncPage{
		Added: []map[string]interface{}{
			{"transaction_id": "t1", "amount": 9.99, "date": "2024-03-15", "name": "Spotify"},
		},
		NextCursor: "cursor-next",
	})
	defer srv.Close()

	items := newTestItems(t)
	if err := items.SaveItem(&plaid.Item{ItemID: "item-1", UserID: "user-1", AccessToken: "tok"}); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}

	repo := &fakeRepo{failNext: true}
	client := plaid.NewClient(config.PlaidConfig{BaseURL: srv.URL}, zerolog.Nop())
	syncer := NewSyncer(client, items, repo, zerolog.Nop())

	job := &jobs.SyncTransactionsJob{JobID: "job-1", UserID: "user-1", ItemID: "item-1"}
	if err := syncer.Run(context.Background(), job); err == nil {
		t.Fatal("expected error when insert fails")
	}

	item, err := items.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	if item.Cursor != "" {
		t.Errorf("cursor = %q, want unchanged empty cursor after failed insert", item.Cursor)
	}
}

func TestSyncerHandler_RejectsWrongJobType(t *testing.T) {
	items := newTestItems(t)
	client := plaid.NewClient(config.PlaidConfig{}, zerolog.Nop())
	syncer := NewSyncer(client, items, &fakeRepo{}, zerolog.Nop())

	handler := syncer.Handler()
	if err := handler(context.Background(), otherJob{}); err == nil {
		t.Fatal("expected error for unexpected job type")
	}
}

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }
