package domain

import (
	"context"
	"errors"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrInvalidInput indicates malformed or empty input. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooLong indicates input exceeds the backend token limit.
	// Callers should shorten the text; it is never truncated silently.
	ErrTooLong = errors.New("input exceeds token limit")

	// ErrEmbeddingUnavailable indicates the embedding backend failed after retries.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGeneration indicates the generation backend failed.
	ErrGeneration = errors.New("generation failed")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented indicates functionality is not available in this build.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// Backend condition errors. Adapters wrap provider failures with these
	// so retry classification lives in one place.

	// ErrRateLimited indicates the backend rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a temporary backend failure (5xx, connection reset).
	ErrTransient = errors.New("transient backend failure")

	// ErrAuthInvalid indicates the backend rejected the supplied credentials.
	ErrAuthInvalid = errors.New("authentication invalid")
)

// ErrorKind is the stable, caller-visible classification of a failure.
type ErrorKind string

// Error kinds surfaced to callers.
const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindTooLong              ErrorKind = "too_long"
	KindEmbeddingUnavailable ErrorKind = "embedding_unavailable"
	KindGeneration           ErrorKind = "generation_error"
	KindTimeout              ErrorKind = "timeout"
	KindCanceled             ErrorKind = "canceled"
	KindInternal             ErrorKind = "internal"
)

// KindOf classifies err. The outermost failure wins: a generation or
// embedding failure caused by a rejected request is reported as the backend
// kind, and timeouts win over everything so callers can tell a slow service
// from a broken one.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrEmbeddingUnavailable):
		return KindEmbeddingUnavailable
	case errors.Is(err, ErrTooLong):
		return KindTooLong
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDimensionMismatch):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTimeout)
}
