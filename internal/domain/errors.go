package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start when the owner already has a
	// collecting or processing baseline.
	ErrAlreadyActive = errors.New("an active baseline already exists")
	// ErrNoActiveBaseline is returned by Ingest and Stop when no baseline is
	// currently collecting or processing for the owner.
	ErrNoActiveBaseline = errors.New("no active baseline")
	// ErrNotReady is the sentinel wrapped by NotReadyError.
	ErrNotReady = errors.New("baseline readiness criteria not met")
	// ErrInsufficientData is raised by the processing pipeline when fewer than
	// the minimum valid samples survive loading, contradicting a stale
	// readiness signal. The baseline transitions to failed.
	ErrInsufficientData = errors.New("insufficient valid data points for processing")
	// ErrInvalidDataPoint marks per-item ingestion validation failures.
	ErrInvalidDataPoint = errors.New("invalid data point")
)

// NotReadyError carries the readiness snapshot observed when Stop was
// rejected, so callers can surface the remaining criteria.
type NotReadyError struct {
	Readiness Readiness
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%v (score %d/100)", ErrNotReady, e.Readiness.Score)
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }
