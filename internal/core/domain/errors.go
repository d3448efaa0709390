package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation indicates content failed a hard precondition (e.g. too few words to chunk)
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited indicates the remote service asked us to slow down
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a retryable network or server failure
	ErrTransient = errors.New("transient failure")

	// ErrPersistentService indicates a remote call failed after the retry budget was spent
	ErrPersistentService = errors.New("service failed after retries")

	// ErrSchemaMismatch indicates a vector length differs from the collection dimensionality
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidVector indicates a vector contains NaN or infinite components
	ErrInvalidVector = errors.New("invalid vector")

	// ErrIngestInProgress indicates another ingestion holds the lock for this origin
	ErrIngestInProgress = errors.New("ingestion already in progress")

	// ErrInvalidProvider indicates an unknown embedding provider or vector backend
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates a dependency could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// RateLimitError is returned when a remote service signals throttling.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// StatusError is a non-2xx response from an HTTP dependency.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Is maps status codes onto the retry taxonomy: 429 is a rate limit,
// 408 and 5xx are transient.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrTransient:
		return e.StatusCode == 408 || e.StatusCode >= 500
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// HTTPStatus returns the response status code
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// SchemaMismatchError reports a vector whose length differs from the collection's.
type SchemaMismatchError struct {
	Expected int
	Got      int
	Position int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: vector %d has %d dimensions, collection expects %d",
		e.Position, e.Got, e.Expected)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// StageError labels a fatal failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline stage names
const (
	StageCrawl    = "crawl"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageStore    = "store"
	StageConnect  = "connect"
	StageSearch   = "search"
	StageValidate = "validate"
	StageLock     = "lock"
)

// NewStageError wraps err with a stage label. Returns nil for a nil error.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// IsRateLimit reports whether err signals throttling, either structurally
// (ErrRateLimited, an HTTP 429) or through its message text.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) && sc.HTTPStatus() == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// IsRetryable reports whether err is worth another attempt.
// Context cancellation and input defects are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if IsRateLimit(err) || errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether err is a caller defect that no retry can fix.
func IsPermanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrInvalidVector) ||
		errors.Is(err, ErrInvalidInput)
}
