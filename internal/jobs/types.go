package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeSyncTransactions pulls transaction deltas for one linked item.
	JobTypeSyncTransactions JobType = "sync_transactions"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// SyncTransactionsJob asks the worker to pull one item's transaction deltas
// from the banking provider and store them.
type SyncTransactionsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID owns the linked item.
	UserID string `json:"user_id"`

	// ItemID names the linked bank connection to sync.
	ItemID string `json:"item_id"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *SyncTransactionsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *SyncTransactionsJob) GetType() JobType {
	return JobTypeSyncTransactions
}

// GetStatus implements the Job interface.
func (j *SyncTransactionsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory,
// Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishSync publishes a transaction sync job.
	PublishSync(ctx context.Context, job *SyncTransactionsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncTransactionsJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SyncTransactionsJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncTransactionsJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by owner.
	UserID string

	// ItemID filters jobs by linked item.
	ItemID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
