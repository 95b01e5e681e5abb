package store

import (
	"context"
	"errors"

	"github.com/finsighthq/finsight/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through
// here; the dispatcher and pipeline never mutate job rows directly.
type Store interface {
	Ping(ctx context.Context) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// ClaimJob atomically transitions queued -> processing. It returns false
	// when the job is already claimed or terminal, which is how duplicate
	// queue deliveries are shed.
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)

	// AppendStageResult appends to the ordered result sequence. Valid only
	// while the job is processing.
	AppendStageResult(ctx context.Context, id uuid.UUID, result models.StageResult) error

	// CompleteJob transitions processing -> completed and stores the report.
	CompleteJob(ctx context.Context, id uuid.UUID, report *models.Report) error

	// FailJob transitions processing -> failed, or queued -> failed for jobs
	// whose claim never succeeded after exhausting retries.
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error

	// RetryJob transitions processing -> queued for another attempt,
	// incrementing retry_count and clearing accumulated stage results.
	// It returns the new retry count.
	RetryJob(ctx context.Context, id uuid.UUID) (int, error)
}
