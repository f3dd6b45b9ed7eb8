package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyImage        = errors.New("source image is empty")
	ErrDecode            = errors.New("image decode failed")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyResult       = errors.New("inference returned no data")
)

// ProcessingError ties a failure to the stage and file it happened in
type ProcessingError struct {
	Stage string
	Path  string
	Cause error
}

func (e *ProcessingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
