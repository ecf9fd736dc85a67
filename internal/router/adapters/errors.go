package adapters

import (
	"errors"
	"fmt"
)

const maxErrorBody = 2 << 10

// ErrMissingCredential is returned before any request is sent when a remote
// provider has no API key configured.
var ErrMissingCredential = errors.New("api key not configured")

// ProviderError is a non-success answer from a backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// MalformedResponseError means the backend answered but the payload could not
// be read as a JSON object.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsProviderError reports whether err wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsMalformed reports whether err wraps a *MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsMissingCredential reports whether err wraps ErrMissingCredential.
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

func newProviderError(provider string, status int, body []byte) *ProviderError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody] + "...(truncated)"
	}
	return &ProviderError{Provider: provider, StatusCode: status, Body: b}
}
