package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a validated upload plus its extracted text. It is immutable
// after creation; rows are deleted once the owning job reaches a terminal
// state unless retention is configured.
type Document struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Filename    string    `db:"filename"     json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes"   json:"size_bytes"`
	Text        string    `db:"text"         json:"-"`
	SHA256      string    `db:"sha256"       json:"sha256"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
