// Package bigquery implements the transaction store on BigQuery. The store
// is an external collaborator of detection: detection itself only ever sees
// domain.Transaction values already loaded into memory.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/promatty/subtrackr/internal/domain"
)

// TransactionRow is one row of subtrackr.transactions.
type TransactionRow struct {
	ExternalID string `bigquery:"external_id"` // REQUIRED, provider natural key

	UserID    string `bigquery:"user_id"`    // REQUIRED
	AccountID string `bigquery:"account_id"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC, positive = charge

	Name         string              `bigquery:"name"`          // REQUIRED, raw bank descriptor
	MerchantName bigquery.NullString `bigquery:"merchant_name"` // NULLABLE, cleaner label

	IsPending bool `bigquery:"is_pending"`

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// FromDomain maps a domain transaction into its row form.
func FromDomain(t domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		ExternalID:      t.ExternalID,
		UserID:          t.UserID,
		AccountID:       t.AccountID,
		TransactionDate: civil.DateOf(t.Date),
		Amount:          new(big.Rat).SetFloat64(t.Amount),
		Name:            t.Name,
		IsPending:       t.Pending,
		CreatedTS:       t.CreatedAt,
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}
	if t.Merchant != "" {
		row.MerchantName = bigquery.NullString{StringVal: t.Merchant, Valid: true}
	}
	return row
}

// ToDomain maps a row back into the domain form the detector consumes.
func (r *TransactionRow) ToDomain() domain.Transaction {
	t := domain.Transaction{
		UserID:     r.UserID,
		ExternalID: r.ExternalID,
		AccountID:  r.AccountID,
		Date:       r.TransactionDate.In(time.UTC),
		Name:       r.Name,
		Pending:    r.IsPending,
		CreatedAt:  r.CreatedTS,
	}
	if r.MerchantName.Valid {
		t.Merchant = r.MerchantName.StringVal
	}
	if r.Amount != nil {
		f, _ := r.Amount.Float64()
		t.Amount = f
	}
	return t
}
