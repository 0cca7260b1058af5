package kalshi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError means credentials or key material could not be loaded.
// It is fatal at startup: no request can be signed without a usable key.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kalshi config: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("kalshi config: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SigningError means the RSA-PSS signing primitive rejected the
// operation. Never retried; it indicates a misconfigured key.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("kalshi signing: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// StatusError is a non-200 response from the exchange. It carries the
// status and body so the caller can decide whether the call is worth
// retrying; the client itself never retries.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kalshi http %d: %s", e.Code, truncate(e.Body, 256))
}

// AsStatusError unwraps err to a *StatusError if one is in the chain.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
