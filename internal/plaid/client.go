// Package plaid is the client for the banking aggregator that supplies raw
// transactions. It owns nothing detection-related: it pulls transaction
// deltas, maps them to domain form, and tracks per-item sync cursors.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/promatty/subtrackr/internal/config"
	"github.com/promatty/subtrackr/internal/domain"
)

// syncPageSize is the per-page transaction count requested from the provider.
const syncPageSize = 100

// Client talks to the aggregator's REST API. Credentials ride in every
// request body per the provider's convention.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.PlaidConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// httpError carries the status code so retry logic can tell transient
// failures from permanent ones.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	if he, ok := err.(*httpError); ok {
		return he.status == http.StatusTooManyRequests || he.status >= 500
	}
	// Network-level failures are worth retrying too.
	return true
}

// post sends one JSON request and decodes the JSON response, retrying rate
// limits and server-side failures.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("plaid: encoding %s request: %w", path, err)
	}

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return &httpError{status: resp.StatusCode, body: string(body)}
			}
			return json.Unmarshal(body, respBody)
		},
		retry.RetryIf(func(err error) bool {
			if retryable(err) {
				c.log.Warn().Err(err).Str("path", path).Msg("provider request failed, will retry")
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("plaid: %s: %w", path, err)
	}
	return nil
}

// ExchangePublicToken trades the token produced by the link flow for a
// long-lived access token and its item ID.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var resp exchangeResponse
	err = c.post(ctx, "/item/public_token/exchange", &exchangeRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		PublicToken: publicToken,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

// SyncTransactions pulls every outstanding transaction delta for an item,
// paging until the provider reports no more. An empty cursor means "from the
// beginning". The returned cursor must be persisted for the next sync.
func (c *Client) SyncTransactions(ctx context.Context, userID, accessToken, cursor string) (*SyncResult, error) {
	result := &SyncResult{NextCursor: cursor}
	ingestedAt := time.Now().UTC()

	for {
		var resp syncResponse
		err := c.post(ctx, "/transactions/sync", &syncRequest{
			ClientID:    c.clientID,
			Secret:      c.secret,
			AccessToken: accessToken,
			Cursor:      result.NextCursor,
			Count:       syncPageSize,
		}, &resp)
		if err != nil {
			return nil, err
		}

		for _, t := range resp.Added {
			result.Added = append(result.Added, t.toDomain(userID, ingestedAt))
		}
		for _, t := range resp.Modified {
			result.Modified = append(result.Modified, t.toDomain(userID, ingestedAt))
		}
		for _, r := range resp.Removed {
			result.RemovedIDs = append(result.RemovedIDs, r.TransactionID)
		}

		result.NextCursor = resp.NextCursor
		if !resp.HasMore {
			break
		}
	}

	c.log.Info().
		Str("user_id", userID).
		Int("added", len(result.Added)).
		Int("modified", len(result.Modified)).
		Int("removed", len(result.RemovedIDs)).
		Msg("transaction sync completed")

	return result, nil
}

// AllTransactions flattens a sync result into the rows to store: added plus
// modified, in provider order.
func (r *SyncResult) AllTransactions() []domain.Transaction {
	out := make([]domain.Transaction, 0, len(r.Added)+len(r.Modified))
	out = append(out, r.Added...)
	out = append(out, r.Modified...)
	return out
}
