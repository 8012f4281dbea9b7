// Package export writes subscription reports to Google Cloud Storage so the
// numbers a user saw on a given day are kept around for later comparison.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/promatty/subtrackr/internal/recurring"
)

// Report is the exported snapshot of one detection run.
type Report struct {
	UserID        string                   `json:"user_id"`
	GeneratedAt   time.Time                `json:"generated_at"`
	Subscriptions []recurring.Subscription `json:"subscriptions"`
	Totals        recurring.Totals         `json:"totals"`
}

// BuildReport assembles a Report from a detection result.
func BuildReport(userID string, result recurring.Result) *Report {
	return &Report{
		UserID:        userID,
		GeneratedAt:   time.Now().UTC(),
		Subscriptions: result.Subscriptions,
		Totals:        result.Totals,
	}
}

// ObjectName returns the GCS object path for a report: reports get grouped
// by user and day, with a UUID so repeated exports never clobber each other.
func ObjectName(r *Report) string {
	return fmt.Sprintf("reports/%s/%s-%s.json", r.UserID, r.GeneratedAt.Format("2006-01-02"), uuid.New().String())
}

// Upload writes the report as JSON to the given bucket and returns the
// resulting gs:// URI. It assumes application default credentials.
func Upload(ctx context.Context, bucketName string, report *Report) (string, error) {
	if bucketName == "" {
		return "", fmt.Errorf("export: no GCS bucket configured")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: encoding report: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("export: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	objectName := ObjectName(report)
	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("export: writing report object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("export: finalizing report upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}
