// Package recurring detects subscription streams in a user's transaction
// history: it groups charges by merchant, checks amount and cadence
// consistency, and projects the next billing date. Detection is a pure
// function of its input - nothing is persisted and repeated runs over the
// same transactions produce the same result.
package recurring

import (
	"time"

	"github.com/promatty/subtrackr/internal/services"
)

// Frequency is the inferred billing cadence of a subscription stream.
type Frequency string

const (
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyAnnually Frequency = "ANNUALLY"
	FrequencyUnknown  Frequency = "UNKNOWN"
)

// Maturity distinguishes early detections from established streams.
type Maturity string

const (
	// MaturityActive marks a stream detected from the minimum number of
	// occurrences but not yet confirmed by a third charge.
	MaturityActive Maturity = "ACTIVE"
	// MaturityMature marks a stream with three or more charges.
	MaturityMature Maturity = "MATURE"
)

// Subscription is one detected recurring stream. It is a derived view,
// recomputed on every detection run; ID is stable across runs because it is
// derived from the merchant key alone.
type Subscription struct {
	ID          string    `json:"id"`
	MerchantKey string    `json:"merchant_key"`
	DisplayName string    `json:"display_name"`
	Amount      float64   `json:"amount"`
	Frequency   Frequency `json:"frequency"`

	// LastChargeDate is when the tracker last saw a charge for this stream:
	// the maximum ingestion timestamp across the group, falling back to the
	// bank-posted date. This is deliberate - it reflects recency of
	// observation, not necessarily the latest posted date.
	LastChargeDate time.Time  `json:"last_charge_date"`
	NextChargeDate *time.Time `json:"next_charge_date,omitempty"`

	// IsActive is always true: nothing in the detection model marks a stream
	// cancelled, even after months of silence.
	IsActive bool `json:"is_active"`

	Maturity         Maturity `json:"maturity"`
	TransactionCount int      `json:"transaction_count"`

	Category string `json:"category,omitempty"`
	LogoURL  string `json:"logo_url,omitempty"`
}

// Totals aggregates the monthly-equivalent cost of every detected stream.
type Totals struct {
	// Monthly sums each stream's monthly equivalent: weekly charges count
	// 4.33 times, biweekly 2.17, annual one twelfth; unknown cadence is
	// treated as monthly.
	Monthly float64 `json:"total_monthly"`
	// Annual is always Monthly times twelve, rounded to two decimals.
	Annual float64 `json:"total_annual"`
}

// Result is the output of one detection run: streams sorted by amount
// descending, plus aggregate totals.
type Result struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Totals        Totals         `json:"totals"`
}

// ServiceLookup supplies known-service metadata for a merchant key.
// *services.Registry satisfies it; detection works without one, falling back
// to raw merchant labels.
type ServiceLookup interface {
	MatchMerchant(merchantKey string) (services.Entry, bool)
}
