package ingest

import (
	"errors"
	"fmt"

	"github.com/fortuna/volleysync/internal/ingest/fetch"
	"github.com/fortuna/volleysync/internal/reconciliation"
)

var (
	// ErrExtractionEmpty means a page was fetched but yielded no records,
	// which usually points at a layout change rather than an empty league.
	ErrExtractionEmpty = errors.New("extraction returned no records")

	// ErrValidationFailed blocks the write phase for a section.
	ErrValidationFailed = errors.New("validation failed")

	// ErrParse wraps HTML parse failures.
	ErrParse = errors.New("failed to parse page")
)

// Error kinds reported in logs, metrics and run reports.
const (
	ErrKindFetch           = "fetch"
	ErrKindParse           = "parse"
	ErrKindExtractionEmpty = "extraction_empty"
	ErrKindValidation      = "validation"
	ErrKindBatch           = "batch"
	ErrKindStore           = "store"
)

// ValidationError describes why extracted records were rejected.
type ValidationError struct {
	Source  string
	Section string
	Reason  string
	Count   int
	Min     int
}

func (e *ValidationError) Error() string {
	if e.Min > 0 {
		return fmt.Sprintf("%s %s: %s (%d records, need %d)", e.Source, e.Section, e.Reason, e.Count, e.Min)
	}
	return fmt.Sprintf("%s %s: %s", e.Source, e.Section, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ErrorKind classifies err into one of the Kind constants. Nil maps to "".
func ErrorKind(err error) string {
	var fetchErr *fetch.FetchError
	var batchErr *reconciliation.BatchError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return ErrKindFetch
	case errors.Is(err, ErrParse):
		return ErrKindParse
	case errors.Is(err, ErrExtractionEmpty):
		return ErrKindExtractionEmpty
	case errors.Is(err, ErrValidationFailed):
		return ErrKindValidation
	case errors.As(err, &batchErr):
		return ErrKindBatch
	default:
		return ErrKindStore
	}
}

// fatal errors stop the remaining sections of a run.
func fatal(err error) bool {
	switch ErrorKind(err) {
	case ErrKindFetch, ErrKindParse, ErrKindExtractionEmpty:
		return true
	}
	return false
}
