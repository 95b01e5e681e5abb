package aierr_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/finsighthq/finsight/internal/ai/aierr"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"deadline exceeded", context.DeadlineExceeded, aierr.ErrInferenceTimeout},
		{"cancelled", context.Canceled, aierr.ErrInferenceTimeout},
		{"net timeout", timeoutErr{}, aierr.ErrInferenceTimeout},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, aierr.ErrProviderUnavailable},
		{"anything else", errors.New("EOF"), aierr.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, aierr.ClassifyError(tt.in), tt.want)
		})
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, aierr.Transient(aierr.ErrProviderUnavailable))
	assert.True(t, aierr.Transient(aierr.ErrInferenceTimeout))
	assert.False(t, aierr.Transient(aierr.ErrInvalidResponse))
	assert.False(t, aierr.Transient(errors.New("logic bug")))
	assert.False(t, aierr.Transient(nil))
}
