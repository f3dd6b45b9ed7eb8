package safe

import (
	"errors"
	"fmt"
)

// MaxDimension bounds the width and height of any image the pipeline accepts
const MaxDimension = 1 << 16

var (
	ErrInvalidMat = errors.New("invalid Mat")
	ErrDimensions = errors.New("invalid dimensions")
)

// Check reports whether mat can be read by operation
func Check(mat *Mat, operation string) error {
	switch {
	case mat == nil:
		return fmt.Errorf("%w: nil for %s", ErrInvalidMat, operation)
	case !mat.IsValid():
		return fmt.Errorf("%w: closed before %s", ErrInvalidMat, operation)
	case mat.Empty():
		return fmt.Errorf("%w: empty for %s", ErrInvalidMat, operation)
	}
	return nil
}

// ValidateDimensions rejects non-positive sizes and anything wider or taller
// than MaxDimension
func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d for %s", ErrDimensions, width, height, operation)
	}
	return nil
}
