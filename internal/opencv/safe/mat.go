// Package safe wraps gocv Mats so native memory is released exactly once and
// leaks show up in the live count.
package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

var live atomic.Int64

// Live reports how many Mats are open right now
func Live() int64 {
	return live.Load()
}

// Mat owns a gocv.Mat. Close is idempotent and a finalizer releases the
// native memory if Close is never called.
type Mat struct {
	mu     sync.RWMutex
	mat    gocv.Mat
	closed atomic.Bool
	tag    string
}

func NewMat(rows, cols int, matType gocv.MatType, tag string) (*Mat, error) {
	if err := ValidateDimensions(cols, rows, tag); err != nil {
		return nil, err
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to allocate %dx%d Mat for %s", cols, rows, tag)
	}
	return wrap(mat, tag), nil
}

// NewBGR allocates an 8-bit 3-channel Mat the size of a pixel buffer
func NewBGR(width, height int, tag string) (*Mat, error) {
	return NewMat(height, width, gocv.MatTypeCV8UC3, tag)
}

// Adopt takes ownership of mat without copying it. An empty mat is closed
// and rejected.
func Adopt(mat gocv.Mat, tag string) (*Mat, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: %s produced an empty Mat", ErrInvalidMat, tag)
	}
	return wrap(mat, tag), nil
}

func wrap(mat gocv.Mat, tag string) *Mat {
	m := &Mat{mat: mat, tag: tag}
	live.Add(1)
	runtime.SetFinalizer(m, (*Mat).Close)
	return m
}

func (m *Mat) IsValid() bool {
	return !m.closed.Load()
}

func (m *Mat) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.IsValid() || m.mat.Empty()
}

func (m *Mat) Rows() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.IsValid() {
		return 0
	}
	return m.mat.Rows()
}

func (m *Mat) Cols() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.IsValid() {
		return 0
	}
	return m.mat.Cols()
}

func (m *Mat) Channels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.IsValid() {
		return 0
	}
	return m.mat.Channels()
}

// GetMat exposes the underlying Mat for gocv calls. The caller must not close it.
func (m *Mat) GetMat() gocv.Mat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mat
}

// Ptr returns a pointer usable as a gocv destination argument
func (m *Mat) Ptr() *gocv.Mat {
	return &m.mat
}

func (m *Mat) Tag() string {
	return m.tag
}

func (m *Mat) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.CompareAndSwap(false, true) {
		m.mat.Close()
		live.Add(-1)
		runtime.SetFinalizer(m, nil)
	}
}
