package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsighthq/finsight/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5. All status
// transitions are single conditional UPDATE statements, so concurrent
// callers on the same job row are serialized by the database and terminal
// states can never regress.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Documents ---

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, filename, content_type, size_bytes, text, sha256, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.Text, doc.SHA256, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, content_type, size_bytes, text, sha256, created_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.Text, &d.SHA256, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, document_id, query, retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Status, job.DocumentID, job.Query, job.RetryCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var (
		j            models.Job
		stageResults []byte
		report       []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, document_id, query, stage_results, report, error_message,
		        retry_count, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Status, &j.DocumentID, &j.Query, &stageResults, &report,
		&j.ErrorMessage, &j.RetryCount, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := json.Unmarshal(stageResults, &j.StageResults); err != nil {
		return nil, fmt.Errorf("decode stage results: %w", err)
	}
	if report != nil {
		j.Report = &models.Report{}
		if err := json.Unmarshal(report, j.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	return &j, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, started_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.JobStatusProcessing, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already claimed or terminal" from "no such job".
	if _, err := s.jobStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) AppendStageResult(ctx context.Context, id uuid.UUID, result models.StageResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode stage result: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET stage_results = stage_results || $2::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, payload, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("append stage result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, "append stage result")
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, report *models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, report = $3::jsonb, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.JobStatusCompleted, payload, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, "complete job")
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, models.JobStatusFailed, errMsg, models.JobStatusProcessing, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, "fail job")
	}
	return nil
}

func (s *PostgresStore) RetryJob(ctx context.Context, id uuid.UUID) (int, error) {
	var retries int
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $2, retry_count = retry_count + 1,
		        stage_results = '[]'::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = $3
		 RETURNING retry_count`,
		id, models.JobStatusQueued, models.JobStatusProcessing).Scan(&retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.transitionError(ctx, id, "retry job")
	}
	if err != nil {
		return 0, fmt.Errorf("retry job: %w", err)
	}
	return retries, nil
}

// jobStatus reads the current status, mapping missing rows to ErrNotFound.
func (s *PostgresStore) jobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

// transitionError reports why a conditional update matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID, op string) error {
	status, err := s.jobStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%s: %w: job is %s", op, ErrInvalidTransition, status)
}

var _ Store = (*PostgresStore)(nil)
