package annotate

import (
	"errors"
	"fmt"
)

// ErrConfidenceNotSupported is returned when a confidence score is attached
// to an annotation kind that cannot carry one (video object annotations use
// keyframe semantics instead).
var ErrConfidenceNotSupported = errors.New("confidence is not supported on video object annotations")

// UUIDError signals a duplicate annotation uuid within one import batch.
type UUIDError struct {
	UUID string
}

func (e *UUIDError) Error() string {
	return fmt.Sprintf("duplicate annotation uuid %v in batch", e.UUID)
}

// ValidationError is a structural failure raised by constructors and
// converters. Line is the 1-based NDJSON line number when known, else zero.
type ValidationError struct {
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %v: %v", e.Line, e.Message)
	}
	return e.Message
}

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
