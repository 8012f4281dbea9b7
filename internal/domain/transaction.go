package domain

import (
	"time"
)

// Transaction represents one bank transaction as supplied by the banking
// aggregator. This is a domain struct, not a BigQuery row; the store maps it
// into the subtrackr.transactions table schema.
// Note: Amount is signed - positive means an outflow/charge, negative means a
// refund or credit. Only positive, non-pending transactions participate in
// recurring detection.
type Transaction struct {
	UserID     string    // owner identity
	ExternalID string    // provider-assigned ID, natural key for upsert/dedup
	AccountID  string    // originating account
	Amount     float64   // signed, positive = charge
	Date       time.Time // calendar date the transaction posted (no time component)
	Name       string    // raw descriptor from the bank feed, e.g. "NETFLIX.COM"
	Merchant   string    // optional cleaner merchant label, preferred over Name
	Pending    bool      // pending transactions are excluded from detection
	CreatedAt  time.Time // ingestion timestamp, used as the "last seen" tiebreak
}

// Label returns the merchant label to group and display by: the cleaner
// Merchant field when the provider supplied one, otherwise the raw Name.
func (t Transaction) Label() string {
	if t.Merchant != "" {
		return t.Merchant
	}
	return t.Name
}
