package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/promatty/subtrackr/internal/api/middleware"
	"github.com/promatty/subtrackr/internal/export"
	"github.com/promatty/subtrackr/internal/jobs"
	"github.com/promatty/subtrackr/internal/plaid"
	"github.com/promatty/subtrackr/internal/recurring"
	"github.com/promatty/subtrackr/internal/roast"
	"github.com/promatty/subtrackr/internal/services"
	"github.com/promatty/subtrackr/internal/store/bigquery"
)

// detectForUser loads a user's transactions and runs detection over them.
// Shared by every endpoint that needs the detected streams.
func detectForUser(ctx context.Context, repo bigquery.TransactionRepository, registry *services.Registry, minOccurrences int, userID string) (recurring.Result, error) {
	txns, err := repo.ListUserTransactions(ctx, userID)
	if err != nil {
		return recurring.Result{}, fmt.Errorf("loading transactions: %w", err)
	}
	return recurring.Detect(txns, recurring.Options{
		MinOccurrences: minOccurrences,
		Services:       registry,
	}), nil
}

// SubscriptionsHandler serves detected subscription streams.
type SubscriptionsHandler struct {
	repo           bigquery.TransactionRepository
	registry       *services.Registry
	minOccurrences int
	log            zerolog.Logger
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(repo bigquery.TransactionRepository, registry *services.Registry, minOccurrences int, log zerolog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		repo:           repo,
		registry:       registry,
		minOccurrences: minOccurrences,
		log:            log,
	}
}

// ListSubscriptions handles GET /api/subscriptions?user_id=...
// Detection runs fresh on every call - descriptors are derived views, never
// persisted.
func (h *SubscriptionsHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result, err := detectForUser(r.Context(), h.repo, h.registry, h.minOccurrences, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to detect subscriptions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to detect subscriptions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": result.Subscriptions,
		"count":         len(result.Subscriptions),
		"totals":        result.Totals,
	})
}

// CancellationsHandler resolves free-text service names to cancellation
// links from the curated table.
type CancellationsHandler struct {
	registry *services.Registry
	log      zerolog.Logger
}

// NewCancellationsHandler creates a new cancellations handler.
func NewCancellationsHandler(registry *services.Registry, log zerolog.Logger) *CancellationsHandler {
	return &CancellationsHandler{registry: registry, log: log}
}

// Lookup handles GET /api/cancellations?service=...
// A miss is a normal outcome, reported as 404 with no error logging.
func (h *CancellationsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("service")
	if query == "" {
		middleware.WriteError(w, http.StatusBadRequest, "service is required")
		return
	}

	entry, confidence, ok := h.registry.Find(query)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No matching service found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":    entry.CanonicalName,
		"cancel_url": entry.CancelURL,
		"notes":      entry.Notes,
		"category":   entry.Category,
		"logo_url":   entry.LogoURL,
		"confidence": confidence,
	})
}

// LinkHandler connects a user's bank via the aggregator's link flow and
// enqueues syncs for linked items.
type LinkHandler struct {
	client    *plaid.Client
	items     *plaid.ItemStore
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(client *plaid.Client, items *plaid.ItemStore, publisher jobs.Publisher, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{
		client:    client,
		items:     items,
		publisher: publisher,
		log:       log,
	}
}

// LinkItem handles POST /api/link. It exchanges the public token from the
// client-side link flow, stores the item, and kicks off an initial sync.
func (h *LinkHandler) LinkItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.PublicToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and public_token are required")
		return
	}

	ctx := r.Context()

	accessToken, itemID, err := h.client.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to exchange public token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to link bank account")
		return
	}

	if err := h.items.SaveItem(&plaid.Item{
		ItemID:      itemID,
		UserID:      req.UserID,
		AccessToken: accessToken,
	}); err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to save linked item")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save linked item")
		return
	}

	job := &jobs.SyncTransactionsJob{UserID: req.UserID, ItemID: itemID}
	if err := h.publisher.PublishSync(ctx, job); err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to enqueue initial sync")
		middleware.WriteError(w, http.StatusInternalServerError, "Linked, but failed to start initial sync")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"item_id": itemID,
		"job_id":  job.JobID,
		"status":  "linked",
	})
}

// EnqueueSync handles POST /api/sync. With an item_id it syncs that item;
// without one it syncs every item the user has linked.
func (h *LinkHandler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()

	itemIDs := []string{req.ItemID}
	if req.ItemID == "" {
		items, err := h.items.ListUserItems(req.UserID)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to list linked items")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list linked items")
			return
		}
		if len(items) == 0 {
			middleware.WriteError(w, http.StatusNotFound, "No linked bank accounts")
			return
		}
		itemIDs = itemIDs[:0]
		for _, item := range items {
			itemIDs = append(itemIDs, item.ItemID)
		}
	}

	jobIDs := make([]string, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		job := &jobs.SyncTransactionsJob{UserID: req.UserID, ItemID: itemID}
		if err := h.publisher.PublishSync(ctx, job); err != nil {
			h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to enqueue sync")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
			return
		}
		jobIDs = append(jobIDs, job.JobID)
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_ids": jobIDs,
		"status":  "queued",
	})
}

// JobsHandler serves sync job status.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// ListJobs handles GET /api/jobs with optional user_id and status filters.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: jobs.JobStatus(r.URL.Query().Get("status")),
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// RoastHandler generates a spending roast from detected subscriptions.
type RoastHandler struct {
	repo           bigquery.TransactionRepository
	registry       *services.Registry
	generator      *roast.Generator
	minOccurrences int
	log            zerolog.Logger
}

// NewRoastHandler creates a new roast handler.
func NewRoastHandler(repo bigquery.TransactionRepository, registry *services.Registry, generator *roast.Generator, minOccurrences int, log zerolog.Logger) *RoastHandler {
	return &RoastHandler{
		repo:           repo,
		registry:       registry,
		generator:      generator,
		minOccurrences: minOccurrences,
		log:            log,
	}
}

// Roast handles POST /api/roast.
func (h *RoastHandler) Roast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()

	result, err := detectForUser(ctx, h.repo, h.registry, h.minOccurrences, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to detect subscriptions for roast")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to detect subscriptions")
		return
	}
	if len(result.Subscriptions) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "No subscriptions to roast")
		return
	}

	text, err := h.generator.Generate(ctx, result.Subscriptions, result.Totals)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Roast generation failed")
		middleware.WriteError(w, http.StatusBadGateway, "Roast generation failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"roast":  text,
		"totals": result.Totals,
	})
}

// ReportsHandler exports detection snapshots to GCS.
type ReportsHandler struct {
	repo           bigquery.TransactionRepository
	registry       *services.Registry
	bucket         string
	minOccurrences int
	log            zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(repo bigquery.TransactionRepository, registry *services.Registry, bucket string, minOccurrences int, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{
		repo:           repo,
		registry:       registry,
		bucket:         bucket,
		minOccurrences: minOccurrences,
		log:            log,
	}
}

// Export handles POST /api/reports/export.
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Report export is not configured")
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()

	result, err := detectForUser(ctx, h.repo, h.registry, h.minOccurrences, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to detect subscriptions for export")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to detect subscriptions")
		return
	}

	uri, err := export.Upload(ctx, h.bucket, export.BuildReport(req.UserID, result))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Report export failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Report export failed")
		return
	}

	h.log.Info().Str("user_id", req.UserID).Str("gcs_uri", uri).Msg("Report exported")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"gcs_uri": uri,
		"status":  "exported",
	})
}
