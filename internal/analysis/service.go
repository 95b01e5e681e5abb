// Package analysis is the submit/poll service behind the HTTP handlers. It
// owns the synchronous half of a job's life: validation, persistence, and
// enqueueing. Everything after that belongs to the worker pool.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsighthq/finsight/internal/cache"
	"github.com/finsighthq/finsight/internal/document"
	"github.com/finsighthq/finsight/internal/queue"
	"github.com/finsighthq/finsight/internal/store"
	"github.com/finsighthq/finsight/pkg/models"
)

// statusTTL matches the worker's cache TTL for mirrored statuses.
const statusTTL = time.Hour

// defaultQuery is applied when a submission carries no query.
const defaultQuery = "Analyze this financial document for investment insights"

// Upload is a submission as received from the transport layer.
type Upload struct {
	Filename    string
	ContentType string
	SizeBytes   int64
	Raw         []byte
	Query       string
}

// JobView is the poll projection of a job. Report and Error are populated
// only in the corresponding terminal state. Every field beyond the id and
// status is omitted when absent, so a cache-served view and a store-served
// view differ only in detail, never in shape.
type JobView struct {
	ID           uuid.UUID            `json:"analysis_id"`
	Status       string               `json:"status"`
	Query        string               `json:"query,omitempty"`
	StageResults []models.StageResult `json:"stage_results,omitempty"`
	Report       *models.Report       `json:"analysis,omitempty"`
	Error        *string              `json:"error,omitempty"`
	RetryCount   int                  `json:"retry_count,omitempty"`
	CreatedAt    *time.Time           `json:"created_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Service coordinates validation, persistence and dispatch for analyses.
type Service struct {
	store     store.Store
	cache     cache.Cache
	queue     queue.Queue
	validator *document.Validator
	logger    *slog.Logger
}

func NewService(st store.Store, c cache.Cache, q queue.Queue, v *document.Validator, logger *slog.Logger) *Service {
	return &Service{store: st, cache: c, queue: q, validator: v, logger: logger}
}

// Submit validates an upload and, if it passes, persists the document and a
// queued job and hands the job id to the queue. A *document.ValidationError
// return means the upload was rejected and nothing was persisted.
func (s *Service) Submit(ctx context.Context, up Upload) (uuid.UUID, error) {
	validated, err := s.validator.Validate(up.Raw, up.ContentType, up.SizeBytes)
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          uuid.New(),
		Filename:    up.Filename,
		ContentType: validated.ContentType,
		SizeBytes:   validated.SizeBytes,
		Text:        validated.Text,
		SHA256:      validated.SHA256,
		CreatedAt:   now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return uuid.Nil, fmt.Errorf("persisting document: %w", err)
	}

	query := up.Query
	if query == "" {
		query = defaultQuery
	}

	// Every submission gets a fresh job, even for a document already seen;
	// the checksum is recorded for traceability, not deduplication.
	job := &models.Job{
		ID:         uuid.New(),
		Status:     models.JobStatusQueued,
		DocumentID: doc.ID,
		Query:      query,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("persisting job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The job exists but will never be picked up; fail it so pollers
		// are not left watching a queued job forever.
		s.logger.Error("enqueue failed", "job_id", job.ID, "error", err)
		if failErr := s.store.FailJob(ctx, job.ID, "dispatch failed"); failErr != nil {
			s.logger.Error("failing undispatched job failed", "job_id", job.ID, "error", failErr)
		}
		return uuid.Nil, fmt.Errorf("dispatching job: %w", err)
	}

	if err := s.cache.SetJobStatus(ctx, job.ID, models.JobStatusQueued, statusTTL); err != nil {
		s.logger.Warn("status cache update failed", "job_id", job.ID, "error", err)
	}

	s.logger.Info("analysis submitted",
		"job_id", job.ID,
		"document_id", doc.ID,
		"filename", doc.Filename,
		"size_bytes", doc.SizeBytes)
	return job.ID, nil
}

// viewTTL bounds the cached projection of a terminal job. The projection is
// immutable once terminal, so the TTL only caps memory, not staleness.
const viewTTL = time.Hour

// Status returns the poll projection for a job. For non-terminal jobs the
// cached status is served when present, skipping the store read. Terminal
// results are rendered from the store once and then served from the cache;
// both paths are idempotent since terminal jobs never change.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (*JobView, error) {
	if status, ok, err := s.cache.GetJobStatus(ctx, jobID); err == nil && ok && !models.TerminalStatus(status) {
		return &JobView{ID: jobID, Status: status}, nil
	} else if err != nil {
		s.logger.Warn("status cache read failed", "job_id", jobID, "error", err)
	}

	if raw, ok, err := s.cache.Get(ctx, cache.JobViewKey(jobID)); err == nil && ok {
		var view JobView
		if err := json.Unmarshal(raw, &view); err == nil {
			return &view, nil
		}
		s.logger.Warn("cached job view corrupt, rereading", "job_id", jobID)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	createdAt := job.CreatedAt
	view := &JobView{
		ID:          job.ID,
		Status:      job.Status,
		Query:       job.Query,
		RetryCount:  job.RetryCount,
		CreatedAt:   &createdAt,
		CompletedAt: job.CompletedAt,
	}
	switch job.Status {
	case models.JobStatusCompleted:
		view.Report = job.Report
		view.StageResults = job.StageResults
	case models.JobStatusFailed:
		view.Error = job.ErrorMessage
		view.StageResults = job.StageResults
	}

	if models.TerminalStatus(job.Status) {
		if raw, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, cache.JobViewKey(jobID), raw, viewTTL); err != nil {
				s.logger.Warn("caching job view failed", "job_id", jobID, "error", err)
			}
		}
	}
	return view, nil
}
