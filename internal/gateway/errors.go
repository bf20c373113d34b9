package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ---------------------------------------------------------------------------
// Error taxonomy — every provider failure carries a class the caller can
// dispatch on without parsing messages.
// ---------------------------------------------------------------------------

// Class partitions provider failures by how the caller should react.
type Class int

const (
	// ClassTransient: rate limit, timeout or upstream blip. Another
	// credential may be tried immediately; the operation can be retried soon.
	ClassTransient Class = iota
	// ClassQuota: the credential's plan is exhausted. Long cooldown, no
	// immediate retry of the operation.
	ClassQuota
	// ClassInvalidInput: the request itself is wrong. Surfaced immediately,
	// never retried.
	ClassInvalidInput
	// ClassUnavailable: no provider or credential can currently serve the
	// capability. Retryable later.
	ClassUnavailable
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassQuota:
		return "quota"
	case ClassInvalidInput:
		return "invalid_input"
	case ClassUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// ProviderError is the typed failure returned by every gateway operation.
type ProviderError struct {
	Provider string
	Op       string
	Class    Class
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Provider, e.Op, e.Class, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class, defaulting to transient for errors the
// gateway did not produce itself.
func ClassOf(err error) Class {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// IsTransient reports whether the failure may be retried soon.
func IsTransient(err error) bool { return err != nil && ClassOf(err) == ClassTransient }

// IsQuota reports whether a credential plan is exhausted.
func IsQuota(err error) bool { return err != nil && ClassOf(err) == ClassQuota }

// IsInvalidInput reports whether the request itself was rejected.
func IsInvalidInput(err error) bool { return err != nil && ClassOf(err) == ClassInvalidInput }

// IsUnavailable reports whether no provider/credential could serve the call.
func IsUnavailable(err error) bool { return err != nil && ClassOf(err) == ClassUnavailable }

// classifyStatus maps an HTTP status to a failure class.
func classifyStatus(code int) Class {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassTransient
	case code >= 500:
		return ClassTransient
	case code == http.StatusPaymentRequired,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden:
		return ClassQuota
	default:
		// Remaining 4xx: the request is malformed or the subject unknown.
		return ClassInvalidInput
	}
}
