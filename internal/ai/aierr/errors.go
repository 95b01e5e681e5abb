// Package aierr defines the error taxonomy for inference providers. It is a
// leaf package so both the providers and their callers can share the
// sentinels without depending on provider construction.
package aierr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for inference failures. Unavailable and timeout are
// transient (the dispatcher retries the job); an invalid response is
// permanent.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// ClassifyError maps transport-level errors from a provider HTTP call to the
// sentinel errors above.
func ClassifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// Transient reports whether err should be retried at job granularity.
func Transient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrInferenceTimeout)
}
