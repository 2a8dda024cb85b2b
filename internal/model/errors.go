package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error taxonomy shared by every component. Compare with errors.Is.
var (
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrDuplicateID          = errors.New("duplicate id")
	ErrNotFound             = errors.New("not found")
	ErrInvalidTag           = errors.New("invalid tag")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrInvalidFixture       = errors.New("invalid fixture")
	ErrTimeout              = errors.New("timeout")

	// Transient failures of external backends.
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("backend unavailable")

	// ErrIncompatibleCorpus means the store was built with a different embedding space.
	ErrIncompatibleCorpus = errors.New("incompatible corpus")
)

// Kind is the stable code of an error, used by the API layer.
type Kind string

const (
	KindDimensionMismatch    Kind = "DIMENSION_MISMATCH"
	KindDuplicateID          Kind = "DUPLICATE_ID"
	KindNotFound             Kind = "NOT_FOUND"
	KindInvalidTag           Kind = "INVALID_TAG"
	KindInsufficientEvidence Kind = "INSUFFICIENT_EVIDENCE"
	KindInvalidFixture       Kind = "INVALID_FIXTURE"
	KindTimeout              Kind = "TIMEOUT"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindUnavailable          Kind = "UNAVAILABLE"
	KindIncompatibleCorpus   Kind = "INCOMPATIBLE_CORPUS"
	KindInternal             Kind = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidFixture, KindInvalidFixture},
	{ErrInvalidTag, KindInvalidTag},
	{ErrInsufficientEvidence, KindInsufficientEvidence},
	{ErrNotFound, KindNotFound},
	{ErrDuplicateID, KindDuplicateID},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrIncompatibleCorpus, KindIncompatibleCorpus},
	{ErrTimeout, KindTimeout},
	{ErrRateLimited, KindRateLimited},
	{ErrUnavailable, KindUnavailable},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if IsDeadline(err) {
		return KindTimeout
	}
	return KindInternal
}

// IsDeadline reports whether err is a deadline or network timeout.
func IsDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// AsTimeout wraps deadline errors with ErrTimeout and leaves others unchanged.
func AsTimeout(op string, err error) error {
	if err == nil || errors.Is(err, ErrTimeout) || !IsDeadline(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
}

// IsTransient reports whether a failed external call may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		IsDeadline(err)
}

// StatusError classifies an HTTP status from an external backend.
func StatusError(status int, detail string) error {
	switch {
	case status == 429:
		return fmt.Errorf("%w (%d): %s", ErrRateLimited, status, detail)
	case status == 408 || status == 504:
		return fmt.Errorf("%w (%d): %s", ErrTimeout, status, detail)
	case status >= 500:
		return fmt.Errorf("%w (%d): %s", ErrUnavailable, status, detail)
	}
	return fmt.Errorf("API error (%d): %s", status, detail)
}
