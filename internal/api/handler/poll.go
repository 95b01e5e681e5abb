package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finsighthq/finsight/internal/analysis"
	"github.com/finsighthq/finsight/internal/api/response"
	"github.com/finsighthq/finsight/internal/store"
)

// StatusReader defines the interface the poll handler depends on.
type StatusReader interface {
	Status(ctx context.Context, jobID uuid.UUID) (*analysis.JobView, error)
}

// NewPollHandler returns an http.HandlerFunc for GET /analysis/{id}.
func NewPollHandler(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			// A malformed id can never name a job.
			response.Error(w, http.StatusNotFound, "NOT_FOUND",
				"No analysis with that id", nil)
			return
		}

		view, err := svc.Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"No analysis with that id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, view)
	}
}
