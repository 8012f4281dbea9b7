package recurring

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promatty/subtrackr/internal/domain"
	"github.com/promatty/subtrackr/internal/match"
)

// DefaultMinOccurrences is the smallest group size considered a stream.
const DefaultMinOccurrences = 2

// maxAmountDeviation is the relative deviation from the mean charge a group
// member may show and still count as amount-consistent. The boundary is
// inclusive: exactly 20% off is still consistent.
var maxAmountDeviation = decimal.NewFromFloat(0.20)

// subscriptionNS namespaces the deterministic stream IDs so the same
// merchant key always yields the same UUID.
var subscriptionNS = uuid.MustParse("8f6f64e6-3a06-48b9-91e1-46cf20e0f2a4")

// Options configures one detection run.
type Options struct {
	// MinOccurrences is the minimum group size that can form a stream.
	// Zero means DefaultMinOccurrences.
	MinOccurrences int

	// Services enriches detected streams with canonical name, category and
	// logo. Optional.
	Services ServiceLookup
}

// Detect classifies one user's transactions into recurring subscription
// streams. It never fails: malformed or borderline transactions are filtered
// out, and when nothing survives the result is simply empty.
func Detect(transactions []domain.Transaction, opts Options) Result {
	minOccurrences := opts.MinOccurrences
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}

	groups := groupByMerchant(transactions)

	subs := make([]Subscription, 0, len(groups))
	for _, g := range groups {
		if len(g.transactions) < minOccurrences {
			continue
		}
		if sub, ok := buildSubscription(g, opts.Services); ok {
			subs = append(subs, sub)
		}
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Amount != subs[j].Amount {
			return subs[i].Amount > subs[j].Amount
		}
		return subs[i].MerchantKey < subs[j].MerchantKey
	})

	return Result{
		Subscriptions: subs,
		Totals:        computeTotals(subs),
	}
}

// merchantGroup is the ephemeral grouping of one merchant's charges,
// rebuilt from scratch on every run.
type merchantGroup struct {
	key          string
	transactions []domain.Transaction
}

// groupByMerchant partitions charges by the light merchant key (lower-case +
// trim of the merchant label). Refunds and pending transactions are dropped
// here. Group order follows first appearance in the input, keeping the run
// deterministic.
func groupByMerchant(transactions []domain.Transaction) []*merchantGroup {
	byKey := make(map[string]*merchantGroup)
	var ordered []*merchantGroup

	for _, t := range transactions {
		if t.Amount <= 0 || t.Pending {
			continue
		}
		key := match.MerchantKey(t.Label())
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &merchantGroup{key: key}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.transactions = append(g.transactions, t)
	}
	return ordered
}

// buildSubscription turns one merchant group into a stream descriptor.
// Returns false when the group shows neither a recognizable cadence nor a
// consistent amount - not enough evidence of a subscription.
func buildSubscription(g *merchantGroup, lookup ServiceLookup) (Subscription, bool) {
	txns := make([]domain.Transaction, len(g.transactions))
	copy(txns, g.transactions)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date)
	})

	avg := averageAmount(txns)
	consistent := amountConsistent(txns, avg)
	freq := classifyFrequency(txns)

	if freq == FrequencyUnknown && !consistent {
		return Subscription{}, false
	}

	sub := Subscription{
		ID:               uuid.NewSHA1(subscriptionNS, []byte(g.key)).String(),
		MerchantKey:      g.key,
		DisplayName:      txns[0].Label(),
		Amount:           avg.InexactFloat64(),
		Frequency:        freq,
		LastChargeDate:   lastSeen(txns),
		IsActive:         true,
		Maturity:         MaturityActive,
		TransactionCount: len(txns),
	}
	if len(txns) >= 3 {
		sub.Maturity = MaturityMature
	}
	if next, ok := nextChargeDate(sub.LastChargeDate, freq); ok {
		sub.NextChargeDate = &next
	}

	if lookup != nil {
		if entry, ok := lookup.MatchMerchant(g.key); ok {
			sub.DisplayName = entry.CanonicalName
			sub.Category = entry.Category
			sub.LogoURL = entry.LogoURL
		}
	}

	return sub, true
}

// averageAmount computes the mean charge rounded to two decimals.
func averageAmount(txns []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(decimal.NewFromFloat(t.Amount))
	}
	return sum.Div(decimal.NewFromInt(int64(len(txns)))).Round(2)
}

// amountConsistent reports whether every charge stays within 20% relative
// deviation of the mean.
func amountConsistent(txns []domain.Transaction, avg decimal.Decimal) bool {
	if avg.IsZero() {
		return false
	}
	allowed := avg.Mul(maxAmountDeviation).Abs()
	for _, t := range txns {
		dev := decimal.NewFromFloat(t.Amount).Sub(avg).Abs()
		if dev.GreaterThan(allowed) {
			return false
		}
	}
	return true
}

// classifyFrequency buckets the mean gap in days between consecutive charges.
// Fixed gap-day buckets, no statistical modeling: up to 10 days is weekly,
// up to 20 biweekly, up to 45 monthly, and 300 to 400 annual. Anything else
// is unknown - in particular the dead zone between monthly and annual, so a
// pair of charges ~60 days apart never fakes an annual plan.
func classifyFrequency(txns []domain.Transaction) Frequency {
	if len(txns) < 2 {
		return FrequencyUnknown
	}

	dates := make([]time.Time, len(txns))
	for i, t := range txns {
		dates[i] = t.Date
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	span := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	meanGap := span / float64(len(dates)-1)

	switch {
	case meanGap <= 10:
		return FrequencyWeekly
	case meanGap <= 20:
		return FrequencyBiweekly
	case meanGap <= 45:
		return FrequencyMonthly
	case meanGap >= 300 && meanGap <= 400:
		return FrequencyAnnually
	default:
		return FrequencyUnknown
	}
}

// lastSeen returns the most recent observation of the stream: the maximum
// ingestion timestamp across the group, falling back to the posted date for
// transactions that never recorded one.
func lastSeen(txns []domain.Transaction) time.Time {
	var last time.Time
	for _, t := range txns {
		seen := t.CreatedAt
		if seen.IsZero() {
			seen = t.Date
		}
		if seen.After(last) {
			last = seen
		}
	}
	return last
}

// nextChargeDate projects the next billing date from the last observed
// charge. Monthly and annual cadences advance by calendar month and year
// rather than fixed day counts. Unknown cadence projects nothing.
func nextChargeDate(last time.Time, freq Frequency) (time.Time, bool) {
	switch freq {
	case FrequencyWeekly:
		return last.AddDate(0, 0, 7), true
	case FrequencyBiweekly:
		return last.AddDate(0, 0, 14), true
	case FrequencyMonthly:
		return last.AddDate(0, 1, 0), true
	case FrequencyAnnually:
		return last.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Monthly-equivalent multipliers per cadence. Unknown cadence counts as
// monthly so a detected stream is never free in the totals.
var monthlyFactors = map[Frequency]decimal.Decimal{
	FrequencyWeekly:   decimal.NewFromFloat(4.33),
	FrequencyBiweekly: decimal.NewFromFloat(2.17),
	FrequencyMonthly:  decimal.NewFromInt(1),
	FrequencyUnknown:  decimal.NewFromInt(1),
}

var twelve = decimal.NewFromInt(12)

// computeTotals sums monthly equivalents across every detected stream.
// Invariant: Annual == round(Monthly * 12, 2).
func computeTotals(subs []Subscription) Totals {
	monthly := decimal.Zero
	for _, s := range subs {
		amount := decimal.NewFromFloat(s.Amount)
		if s.Frequency == FrequencyAnnually {
			monthly = monthly.Add(amount.Div(twelve))
			continue
		}
		monthly = monthly.Add(amount.Mul(monthlyFactors[s.Frequency]))
	}

	monthly = monthly.Round(2)
	return Totals{
		Monthly: monthly.InexactFloat64(),
		Annual:  monthly.Mul(twelve).Round(2).InexactFloat64(),
	}
}
