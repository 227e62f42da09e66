package translator

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMissingKey is returned by services that have no credential configured.
var ErrMissingKey = errors.New("provider credential is not configured")

// MaxDetailRunes bounds the upstream detail kept on a ProviderError.
const MaxDetailRunes = 1000

type ErrorKind string

const (
	// KindTransport covers dial, TLS, timeout and cancellation failures.
	KindTransport ErrorKind = "transport"
	// KindStatus is a non-success HTTP status, after retries.
	KindStatus ErrorKind = "status"
	// KindMalformed is a success status with a body that could not be used.
	KindMalformed ErrorKind = "malformed"
	// KindEmpty is a well-formed answer without translated text.
	KindEmpty ErrorKind = "empty"
)

// ProviderError is the normalized failure of a provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	// Status is the upstream HTTP status, 0 when no response was received.
	Status int
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Detail)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(provider string, kind ErrorKind, status int, detail string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Detail:   Truncate(detail, MaxDetailRunes),
		Err:      err,
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
