package recurring

import (
	"testing"
	"time"

	"github.com/promatty/subtrackr/internal/domain"
	"github.com/promatty/subtrackr/internal/services"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func charge(merchant, date string, amount float64) domain.Transaction {
	return domain.Transaction{
		UserID:   "user-1",
		Amount:   amount,
		Date:     day(date),
		Merchant: merchant,
	}
}

// stubLookup is a fixed merchant-key -> entry table for enrichment tests.
type stubLookup map[string]services.Entry

func (s stubLookup) MatchMerchant(merchantKey string) (services.Entry, bool) {
	e, ok := s[merchantKey]
	return e, ok
}

func TestDetect_MonthlyStream(t *testing.T) {
	txns := []domain.Transaction{
		charge("Netflix", "2024-01-15", 15.99),
		charge("Netflix", "2024-02-15", 15.99),
		charge("Netflix", "2024-03-15", 15.99),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	sub := result.Subscriptions[0]

	if sub.MerchantKey != "netflix" {
		t.Errorf("merchant key = %q, want %q", sub.MerchantKey, "netflix")
	}
	if sub.Amount != 15.99 {
		t.Errorf("amount = %v, want 15.99", sub.Amount)
	}
	if sub.Frequency != FrequencyMonthly {
		t.Errorf("frequency = %s, want MONTHLY", sub.Frequency)
	}
	if sub.Maturity != MaturityMature {
		t.Errorf("maturity = %s, want MATURE", sub.Maturity)
	}
	if sub.TransactionCount != 3 {
		t.Errorf("transaction count = %d, want 3", sub.TransactionCount)
	}
	if !sub.IsActive {
		t.Error("is_active = false, want true")
	}
	if !sub.LastChargeDate.Equal(day("2024-03-15")) {
		t.Errorf("last charge = %s, want 2024-03-15", sub.LastChargeDate.Format("2006-01-02"))
	}
	if sub.NextChargeDate == nil {
		t.Fatal("next charge date is nil")
	}
	if !sub.NextChargeDate.Equal(day("2024-04-15")) {
		t.Errorf("next charge = %s, want 2024-04-15", sub.NextChargeDate.Format("2006-01-02"))
	}
}

func TestDetect_SingleChargeIgnored(t *testing.T) {
	txns := []domain.Transaction{
		charge("GYMCO", "2024-01-05", 45.00),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0", len(result.Subscriptions))
	}
	if result.Totals.Monthly != 0 || result.Totals.Annual != 0 {
		t.Errorf("totals = %+v, want zero", result.Totals)
	}
}

func TestDetect_IrregularGroupDiscarded(t *testing.T) {
	// 60-day gap lands between the monthly and annual buckets, and the
	// amounts disagree wildly, so the group shows no subscription evidence.
	txns := []domain.Transaction{
		charge("Random Shop", "2024-01-01", 10.00),
		charge("Random Shop", "2024-03-01", 95.00),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0", len(result.Subscriptions))
	}
}

func TestDetect_UnknownCadenceKeptWhenAmountConsistent(t *testing.T) {
	txns := []domain.Transaction{
		charge("Storage Unit", "2024-01-01", 30.00),
		charge("Storage Unit", "2024-03-01", 30.00),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	sub := result.Subscriptions[0]
	if sub.Frequency != FrequencyUnknown {
		t.Errorf("frequency = %s, want UNKNOWN", sub.Frequency)
	}
	if sub.NextChargeDate != nil {
		t.Error("unknown cadence should project no next charge date")
	}
	// Unknown cadence still counts as monthly in totals.
	if result.Totals.Monthly != 30.00 {
		t.Errorf("monthly total = %v, want 30.00", result.Totals.Monthly)
	}
}

func TestClassifyFrequency_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  Frequency
	}{
		{"weekly at 7 days", []string{"2024-01-01", "2024-01-08"}, FrequencyWeekly},
		{"weekly boundary at 10", []string{"2024-01-01", "2024-01-11"}, FrequencyWeekly},
		{"biweekly at 14 days", []string{"2024-01-01", "2024-01-15"}, FrequencyBiweekly},
		{"biweekly boundary at 20", []string{"2024-01-01", "2024-01-21"}, FrequencyBiweekly},
		{"monthly at 30 days", []string{"2024-01-01", "2024-01-31"}, FrequencyMonthly},
		{"monthly boundary at 45", []string{"2024-01-01", "2024-02-15"}, FrequencyMonthly},
		{"dead zone at 60", []string{"2024-01-01", "2024-03-01"}, FrequencyUnknown},
		{"dead zone at 200", []string{"2023-06-01", "2023-12-18"}, FrequencyUnknown},
		{"annual at 365", []string{"2023-01-01", "2024-01-01"}, FrequencyAnnually},
		{"annual lower bound at 300", []string{"2023-01-01", "2023-10-28"}, FrequencyAnnually},
		{"annual upper bound at 400", []string{"2023-01-01", "2024-02-05"}, FrequencyAnnually},
		{"beyond annual at 500", []string{"2023-01-01", "2024-05-15"}, FrequencyUnknown},
		{"single charge", []string{"2024-01-01"}, FrequencyUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := make([]domain.Transaction, len(tt.dates))
			for i, d := range tt.dates {
				txns[i] = charge("svc", d, 9.99)
			}
			if got := classifyFrequency(txns); got != tt.want {
				t.Errorf("classifyFrequency = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetect_AmountDeviationBoundaryInclusive(t *testing.T) {
	// Mean of 10 and 15 is 12.50; both deviate exactly 20%, which still
	// counts as consistent. Cadence is unknown, so consistency alone keeps
	// the group.
	txns := []domain.Transaction{
		charge("Variable Plan", "2024-01-01", 10.00),
		charge("Variable Plan", "2024-03-01", 15.00),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	if got := result.Subscriptions[0].Amount; got != 12.50 {
		t.Errorf("amount = %v, want 12.50", got)
	}
}

func TestDetect_AmountDeviationJustOverBoundary(t *testing.T) {
	// Mean of 10 and 15.10 is 12.55; deviation 2.55 exceeds the allowed
	// 2.51, so with unknown cadence the group is discarded.
	txns := []domain.Transaction{
		charge("Variable Plan", "2024-01-01", 10.00),
		charge("Variable Plan", "2024-03-01", 15.10),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 0 {
		t.Fatalf("got %d subscriptions, want 0", len(result.Subscriptions))
	}
}

func TestDetect_FiltersRefundsAndPending(t *testing.T) {
	pending := charge("Netflix", "2024-03-15", 15.99)
	pending.Pending = true

	txns := []domain.Transaction{
		charge("Netflix", "2024-01-15", 15.99),
		charge("Netflix", "2024-02-15", 15.99),
		charge("Netflix", "2024-02-20", -15.99), // refund
		pending,
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	if got := result.Subscriptions[0].TransactionCount; got != 2 {
		t.Errorf("transaction count = %d, want 2 (refund and pending excluded)", got)
	}
}

func TestDetect_MinOccurrencesOption(t *testing.T) {
	txns := []domain.Transaction{
		charge("Spotify", "2024-01-10", 9.99),
		charge("Spotify", "2024-02-10", 9.99),
	}

	if got := Detect(txns, Options{MinOccurrences: 3}); len(got.Subscriptions) != 0 {
		t.Errorf("min 3: got %d subscriptions, want 0", len(got.Subscriptions))
	}
	if got := Detect(txns, Options{MinOccurrences: 2}); len(got.Subscriptions) != 1 {
		t.Errorf("min 2: got %d subscriptions, want 1", len(got.Subscriptions))
	}
}

func TestDetect_LastChargeDateUsesIngestionTime(t *testing.T) {
	a := charge("Netflix", "2024-01-15", 15.99)
	a.CreatedAt = day("2024-03-20")
	b := charge("Netflix", "2024-02-15", 15.99)
	b.CreatedAt = day("2024-02-16")

	result := Detect([]domain.Transaction{a, b}, Options{})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	// The older posting was ingested later; observation recency wins.
	if got := result.Subscriptions[0].LastChargeDate; !got.Equal(day("2024-03-20")) {
		t.Errorf("last charge = %s, want 2024-03-20", got.Format("2006-01-02"))
	}
}

func TestDetect_SortsByAmountDescending(t *testing.T) {
	txns := []domain.Transaction{
		charge("Cheap", "2024-01-01", 5.00),
		charge("Cheap", "2024-02-01", 5.00),
		charge("Pricey", "2024-01-01", 50.00),
		charge("Pricey", "2024-02-01", 50.00),
		charge("Beta", "2024-01-01", 5.00),
		charge("Beta", "2024-02-01", 5.00),
	}

	result := Detect(txns, Options{})

	if len(result.Subscriptions) != 3 {
		t.Fatalf("got %d subscriptions, want 3", len(result.Subscriptions))
	}
	keys := []string{
		result.Subscriptions[0].MerchantKey,
		result.Subscriptions[1].MerchantKey,
		result.Subscriptions[2].MerchantKey,
	}
	want := []string{"pricey", "beta", "cheap"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
}

func TestDetect_StableIDs(t *testing.T) {
	txns := []domain.Transaction{
		charge("Netflix", "2024-01-15", 15.99),
		charge("Netflix", "2024-02-15", 15.99),
	}

	first := Detect(txns, Options{})
	second := Detect(txns, Options{})

	if first.Subscriptions[0].ID != second.Subscriptions[0].ID {
		t.Errorf("IDs differ across runs: %s vs %s",
			first.Subscriptions[0].ID, second.Subscriptions[0].ID)
	}
	if first.Subscriptions[0].ID == "" {
		t.Error("ID is empty")
	}
}

func TestDetect_ServiceEnrichment(t *testing.T) {
	txns := []domain.Transaction{
		charge("NETFLIX.COM", "2024-01-15", 15.99),
		charge("NETFLIX.COM", "2024-02-15", 15.99),
	}
	lookup := stubLookup{
		"netflix.com": {
			CanonicalName: "Netflix",
			Category:      "streaming",
			LogoURL:       "https://logo.example/netflix.png",
		},
	}

	result := Detect(txns, Options{Services: lookup})

	if len(result.Subscriptions) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(result.Subscriptions))
	}
	sub := result.Subscriptions[0]
	if sub.DisplayName != "Netflix" {
		t.Errorf("display name = %q, want %q", sub.DisplayName, "Netflix")
	}
	if sub.Category != "streaming" {
		t.Errorf("category = %q, want %q", sub.Category, "streaming")
	}
	if sub.MerchantKey != "netflix.com" {
		t.Errorf("merchant key = %q, want raw key preserved", sub.MerchantKey)
	}
}

func TestComputeTotals(t *testing.T) {
	subs := []Subscription{
		{Amount: 10.00, Frequency: FrequencyWeekly},   // 43.30
		{Amount: 20.00, Frequency: FrequencyBiweekly}, // 43.40
		{Amount: 15.99, Frequency: FrequencyMonthly},  // 15.99
		{Amount: 120.00, Frequency: FrequencyAnnually}, // 10.00
		{Amount: 5.00, Frequency: FrequencyUnknown},   // 5.00
	}

	totals := computeTotals(subs)

	if totals.Monthly != 117.69 {
		t.Errorf("monthly = %v, want 117.69", totals.Monthly)
	}
	if totals.Annual != 1412.28 {
		t.Errorf("annual = %v, want 1412.28", totals.Annual)
	}
}

func TestComputeTotals_AnnualInvariant(t *testing.T) {
	subs := []Subscription{
		{Amount: 9.99, Frequency: FrequencyMonthly},
		{Amount: 7.49, Frequency: FrequencyWeekly},
	}
	totals := computeTotals(subs)

	want := totals.Monthly * 12
	// Round to cents the same way the implementation does.
	want = float64(int64(want*100+0.5)) / 100
	if totals.Annual != want {
		t.Errorf("annual = %v, want monthly*12 = %v", totals.Annual, want)
	}
}
