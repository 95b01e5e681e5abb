package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/finsighthq/finsight/internal/api/middleware"
)

func TestRecovery_CatchesPanic(t *testing.T) {
	h := middleware.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/analyze", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestLogger_PassesThrough(t *testing.T) {
	h := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("POST", "/analyze", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

// erroringCache fails every rate-limit increment.
type erroringCache struct{}

func (erroringCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (erroringCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (erroringCache) Delete(context.Context, string) error                     { return nil }
func (erroringCache) Ping(context.Context) error                               { return nil }
func (erroringCache) SetJobStatus(context.Context, uuid.UUID, string, time.Duration) error {
	return nil
}
func (erroringCache) GetJobStatus(context.Context, uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (erroringCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, context.DeadlineExceeded
}

func TestRateLimit_FailsOpenOnCacheError(t *testing.T) {
	rl := middleware.NewRateLimit(erroringCache{}, 1)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/analyze", nil)
		req.RemoteAddr = "203.0.113.9:4567"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
