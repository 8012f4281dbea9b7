package plaid

import (
	"time"

	"github.com/promatty/subtrackr/internal/domain"
)

// transaction is the provider's wire form of one transaction. Amounts follow
// the provider's convention: positive means money out, which matches the
// domain convention directly.
type transaction struct {
	TransactionID string  `json:"transaction_id"`
	AccountID     string  `json:"account_id"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"` // YYYY-MM-DD
	Name          string  `json:"name"`
	MerchantName  string  `json:"merchant_name,omitempty"`
	Pending       bool    `json:"pending"`
}

// toDomain maps a provider transaction onto the domain form. Unparseable
// dates zero out rather than fail; the detector filters them naturally.
func (t transaction) toDomain(userID string, ingestedAt time.Time) domain.Transaction {
	date, _ := time.Parse("2006-01-02", t.Date)
	return domain.Transaction{
		UserID:     userID,
		ExternalID: t.TransactionID,
		AccountID:  t.AccountID,
		Amount:     t.Amount,
		Date:       date,
		Name:       t.Name,
		Merchant:   t.MerchantName,
		Pending:    t.Pending,
		CreatedAt:  ingestedAt,
	}
}

type exchangeRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

type syncRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count,omitempty"`
}

type syncResponse struct {
	Added      []transaction `json:"added"`
	Modified   []transaction `json:"modified"`
	Removed    []struct {
		TransactionID string `json:"transaction_id"`
	} `json:"removed"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// SyncResult is the accumulated outcome of a full sync pass (all pages).
type SyncResult struct {
	Added      []domain.Transaction
	Modified   []domain.Transaction
	RemovedIDs []string
	NextCursor string
}
