package export

import (
	"context"
	"strings"
	"testing"

	"github.com/promatty/subtrackr/internal/recurring"
)

func TestBuildReport(t *testing.T) {
	result := recurring.Result{
		Subscriptions: []recurring.Subscription{
			{MerchantKey: "netflix", Amount: 15.99},
		},
		Totals: recurring.Totals{Monthly: 15.99, Annual: 191.88},
	}

	report := BuildReport("user-1", result)

	if report.UserID != "user-1" {
		t.Errorf("user ID = %q, want user-1", report.UserID)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not stamped")
	}
	if len(report.Subscriptions) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(report.Subscriptions))
	}
	if report.Totals != result.Totals {
		t.Errorf("totals = %+v, want %+v", report.Totals, result.Totals)
	}
}

func TestObjectName(t *testing.T) {
	report := BuildReport("user-1", recurring.Result{})

	name := ObjectName(report)

	prefix := "reports/user-1/" + report.GeneratedAt.Format("2006-01-02") + "-"
	if !strings.HasPrefix(name, prefix) {
		t.Errorf("object name %q missing prefix %q", name, prefix)
	}
	if !strings.HasSuffix(name, ".json") {
		t.Errorf("object name %q missing .json suffix", name)
	}

	// Repeated exports of the same report must not collide.
	if other := ObjectName(report); other == name {
		t.Error("two exports produced the same object name")
	}
}

func TestUpload_RequiresBucket(t *testing.T) {
	_, err := Upload(context.Background(), "", BuildReport("user-1", recurring.Result{}))
	if err == nil {
		t.Fatal("expected error when no bucket is configured")
	}
}
