package handler

import (
	"net/http"

	"github.com/finsighthq/finsight/internal/api/response"
	"github.com/finsighthq/finsight/internal/cache"
	"github.com/finsighthq/finsight/internal/store"
)

// NewHealthHandler checks database and cache connectivity for GET /.
func NewHealthHandler(s store.Store, c cache.Cache, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"version":  version,
			"services": checks,
		})
	}
}
