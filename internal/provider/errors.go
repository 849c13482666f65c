package provider

import (
	"errors"
	"fmt"
)

// ProviderError captures an upstream failure with enough detail for the
// retry policy: transient errors (timeouts, throttling, 5xx) may be retried,
// permanent ones (invalid input, policy rejection) fail immediately.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure. Anything
// that is not a *ProviderError is treated as permanent.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// transientStatus classifies upstream HTTP statuses: throttling, timeouts
// and server-side errors are worth retrying.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// NotFoundError is returned when a provider name has no registration. It
// lists the available names to make deployment mistakes obvious.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not registered (available: %v)", e.Name, e.Available)
}
