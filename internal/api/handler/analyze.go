package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/finsighthq/finsight/internal/analysis"
	"github.com/finsighthq/finsight/internal/api/response"
	"github.com/finsighthq/finsight/internal/document"
)

// Submitter defines the interface the analyze handler depends on.
type Submitter interface {
	Submit(ctx context.Context, up analysis.Upload) (uuid.UUID, error)
}

// multipartOverhead is added to the document size cap when parsing the
// form, to leave room for field boundaries and the query value.
const multipartOverhead = 1 << 20

// NewAnalyzeHandler returns an http.HandlerFunc for POST /analyze. The body
// is multipart form data with a required "file" part and an optional
// "query" field.
func NewAnalyzeHandler(svc Submitter, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Reject oversized bodies before buffering them. The validator
		// re-checks the document size; this guards the transport.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)

		if err := r.ParseMultipartForm(maxUploadBytes + multipartOverhead); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.Error(w, http.StatusBadRequest, string(document.KindTooLarge),
					"Uploaded document exceeds the size limit", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Body must be multipart form data", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"file is required", nil)
			return
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"could not read uploaded file", nil)
			return
		}

		jobID, err := svc.Submit(r.Context(), analysis.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			SizeBytes:   int64(len(raw)),
			Raw:         raw,
			Query:       r.FormValue("query"),
		})
		if err != nil {
			var verr *document.ValidationError
			if errors.As(err, &verr) {
				response.Error(w, http.StatusBadRequest, string(verr.Kind), verr.Message, nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, map[string]string{"analysis_id": jobID.String()})
	}
}
