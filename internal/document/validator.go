// Package document validates uploaded financial documents and extracts
// their text content. Validation runs synchronously in the request path so
// callers see rejections immediately, never via the async job.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
)

// ErrorKind identifies why an upload was rejected.
type ErrorKind string

const (
	KindTooLarge          ErrorKind = "TOO_LARGE"
	KindUnsupportedType   ErrorKind = "UNSUPPORTED_TYPE"
	KindCorruptContent    ErrorKind = "CORRUPT_CONTENT"
	KindUnreadableContent ErrorKind = "UNREADABLE_CONTENT"
)

// ValidationError describes a rejected upload.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ValidatedDocument is the output of a successful validation: the raw bytes,
// their extracted text, and metadata for persistence.
type ValidatedDocument struct {
	Raw         []byte
	Text        string
	ContentType string
	SizeBytes   int64
	SHA256      string
}

const supportedContentType = "application/pdf"

// pdfMagic is the byte signature every PDF starts with.
var pdfMagic = []byte("%PDF-")

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	Extract(raw []byte) (string, error)
}

// Validator enforces the upload constraints: size cap, declared type,
// content signature, and non-empty extracted text, checked in that order.
type Validator struct {
	maxBytes  int64
	extractor TextExtractor
}

// NewValidator creates a Validator with the given size cap and extractor.
func NewValidator(maxBytes int64, extractor TextExtractor) *Validator {
	return &Validator{maxBytes: maxBytes, extractor: extractor}
}

// Validate checks an upload and returns a ValidatedDocument, or a
// *ValidationError describing the first failed check. It has no side
// effects; nothing is persisted here.
func (v *Validator) Validate(raw []byte, declaredContentType string, sizeBytes int64) (*ValidatedDocument, error) {
	if sizeBytes > v.maxBytes || int64(len(raw)) > v.maxBytes {
		return nil, &ValidationError{
			Kind:    KindTooLarge,
			Message: fmt.Sprintf("document exceeds the %d byte limit", v.maxBytes),
		}
	}

	if normalizeContentType(declaredContentType) != supportedContentType {
		return nil, &ValidationError{
			Kind:    KindUnsupportedType,
			Message: fmt.Sprintf("unsupported content type %q, expected %s", declaredContentType, supportedContentType),
		}
	}

	// The declared type is not trusted; the bytes must actually be a PDF.
	if !bytes.HasPrefix(raw, pdfMagic) {
		return nil, &ValidationError{
			Kind:    KindCorruptContent,
			Message: "content does not match the declared document format",
		}
	}

	text, err := v.extractor.Extract(raw)
	if err != nil || strings.TrimSpace(text) == "" {
		msg := "no text could be extracted from the document"
		if err != nil {
			msg = fmt.Sprintf("extracting text: %v", err)
		}
		return nil, &ValidationError{Kind: KindUnreadableContent, Message: msg}
	}

	sum := sha256.Sum256(raw)
	return &ValidatedDocument{
		Raw:         raw,
		Text:        text,
		ContentType: supportedContentType,
		SizeBytes:   sizeBytes,
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

// normalizeContentType strips parameters like "; charset=binary" and lowers
// the media type. Invalid declarations are returned as-is so they fail the
// equality check.
func normalizeContentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}
