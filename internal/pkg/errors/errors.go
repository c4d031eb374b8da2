package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ScanError represents a scan pipeline error with a retry classification
type ScanError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Region   string `json:"region,omitempty"`
	Internal error  `json:"-"`
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *ScanError) Unwrap() error {
	return e.Internal
}

// Error codes
const (
	// ErrCodeTransient covers timeouts, throttling and 5xx-equivalent
	// provider responses. Safe to retry with backoff.
	ErrCodeTransient = "TRANSIENT"

	// ErrCodePermanent covers bad credentials, unsupported regions and
	// malformed requests. Aborts the affected provider task only.
	ErrCodePermanent = "PERMANENT"

	// ErrCodeIntegrity covers invariant violations such as a pagination
	// token loop or a mutating call. Fatal to the whole scan.
	ErrCodeIntegrity = "INTEGRITY"
)

// Transient creates a retryable error
func Transient(message string, err error) *ScanError {
	return &ScanError{Code: ErrCodeTransient, Message: message, Internal: err}
}

// Permanent creates a non-retryable error that aborts a single provider task
func Permanent(message string, err error) *ScanError {
	return &ScanError{Code: ErrCodePermanent, Message: message, Internal: err}
}

// Integrity creates a fatal invariant-violation error
func Integrity(message string, err error) *ScanError {
	return &ScanError{Code: ErrCodeIntegrity, Message: message, Internal: err}
}

// WithProvider attaches provider/region context for task failure reporting
func (e *ScanError) WithProvider(provider, region string) *ScanError {
	e.Provider = provider
	e.Region = region
	return e
}

// ProviderAuth creates a permanent provider authentication error
func ProviderAuth(provider string, err error) *ScanError {
	return Permanent(fmt.Sprintf("failed to authenticate with %s", provider), err).
		WithProvider(provider, "")
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == ErrCodeTransient
	}
	return false
}

// IsPermanent reports whether err aborts the affected task without retry
func IsPermanent(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == ErrCodePermanent
	}
	return false
}

// IsIntegrity reports whether err is fatal to the whole scan
func IsIntegrity(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == ErrCodeIntegrity
	}
	return false
}

// throttleMarkers match the throttling/timeout vocabulary used across the
// AWS, Azure and GCP SDK error strings.
var throttleMarkers = []string{
	"throttl",
	"rate exceeded",
	"too many requests",
	"toomanyrequests",
	"429",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"service unavailable",
	"503",
	"502",
	"500",
	"internal error",
	"try again",
}

// ClassifyProvider wraps a raw provider SDK error into the scan taxonomy.
// Context cancellation passes through untouched so cooperative cancellation
// is never retried.
func ClassifyProvider(provider, region string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *ScanError
	if errors.As(err, &se) {
		return se
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return Transient(fmt.Sprintf("%s API transient failure", provider), err).
				WithProvider(provider, region)
		}
	}
	return Permanent(fmt.Sprintf("%s API call failed", provider), err).
		WithProvider(provider, region)
}
