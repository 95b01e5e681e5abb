package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// TerminalStatus reports whether a job status permits no further transitions.
func TerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks one document analysis request. The API returns an analysis_id on
// POST /analyze; the client polls GET /analysis/{id} until status is
// completed or failed.
type Job struct {
	ID           uuid.UUID     `db:"id"            json:"id"`
	Status       string        `db:"status"        json:"status"`
	DocumentID   uuid.UUID     `db:"document_id"   json:"document_id"`
	Query        string        `db:"query"         json:"query"`
	StageResults []StageResult `db:"stage_results" json:"stage_results"`
	Report       *Report       `db:"report"        json:"report,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int           `db:"retry_count"   json:"retry_count"`
	StartedAt    *time.Time    `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time    `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}
