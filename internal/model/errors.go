package model

import (
	"errors"
	"fmt"
)

// Sentinel conditions the runner distinguishes from plain stage failures.
var (
	// ErrNoSourceFile: the extractor's output directory holds no CSV file.
	ErrNoSourceFile = errors.New("no source csv file found")

	// ErrNoPendingData: the raw table holds no rows for any batch. Expected
	// between extraction runs; the transformer exits without touching tables.
	ErrNoPendingData = errors.New("no pending data in raw table")

	// ErrMergeConstraint: the unique key required by the staging merge cannot
	// be established, usually because pre-existing duplicate rows block index
	// creation. Requires manual cleanup.
	ErrMergeConstraint = errors.New("staging merge key cannot be established")
)

// StageError tags a failure with the pipeline stage it came from so the
// runner can record it against lineage and the run record.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExpectedEmpty reports whether err is one of the expected empty-input
// conditions rather than a crash.
func ExpectedEmpty(err error) bool {
	return errors.Is(err, ErrNoSourceFile) || errors.Is(err, ErrNoPendingData)
}

// TruncateError bounds an error message for persistence into batch_log.
func TruncateError(msg string) string {
	if len(msg) > ErrorMessageLimit {
		return msg[:ErrorMessageLimit]
	}
	return msg
}
