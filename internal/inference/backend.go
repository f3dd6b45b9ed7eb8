// Package inference runs one tile through an upscaling model. The pipeline
// only depends on the Backend contract; concrete backends range from an ONNX
// Runtime session pool to deterministic model-free resamplers.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/models"

	"golang.org/x/sys/cpu"
)

var (
	ErrModelNotFound = errors.New("model file not found")
	ErrModelLoad     = errors.New("model failed to load")
	ErrInvalidScale  = errors.New("scale factor must be at least 1")
)

// Backend executes one sample through the model. It must be stateless between
// calls. An empty result or an error marks only that tile as failed.
type Backend interface {
	Run(ctx context.Context, sample models.NumericSample) ([]float32, error)
	// Scale is the integer factor applied to height and width
	Scale() int
	Name() string
	Close() error
}

// Options configures backend construction
type Options struct {
	ModelPath   string
	Scale       int
	Device      models.Device
	PoolSize    int
	Threads     int
	LibraryPath string
}

const (
	stubMarker     = "stub"
	nearestPrefix  = "nearest"
	resamplePrefix = "resample:"
)

// Open picks a backend from the model path:
//
//	*stub*              constant grey output
//	nearest             nearest-neighbour replication
//	resample:<filter>   imaging resampling (lanczos, catmullrom, linear, box, nearest)
//	anything else       ONNX model file
func Open(opts Options, log logger.Logger) (Backend, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Scale < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScale, opts.Scale)
	}

	path := strings.TrimSpace(opts.ModelPath)
	lower := strings.ToLower(path)

	var (
		backend Backend
		err     error
	)
	switch {
	case lower == "":
		return nil, fmt.Errorf("%w: no model path given", ErrModelNotFound)
	case strings.HasPrefix(lower, resamplePrefix):
		backend, err = NewResampleBackend(opts.Scale, strings.TrimPrefix(lower, resamplePrefix))
	case lower == nearestPrefix:
		backend = NewNearestBackend(opts.Scale)
	case strings.Contains(lower, stubMarker):
		backend = NewStubBackend(opts.Scale)
	default:
		backend, err = NewONNXBackend(opts, log)
	}
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"backend": backend.Name(),
		"scale":   backend.Scale(),
		"device":  opts.Device.String(),
	}
	if opts.Device == models.DeviceCPU {
		for k, v := range CPUFeatures() {
			fields[k] = v
		}
	}
	log.Info("Inference", "backend ready", fields)
	return backend, nil
}

// CPUFeatures reports the SIMD extensions the CPU execution provider can use
func CPUFeatures() map[string]bool {
	return map[string]bool{
		"avx2":    cpu.X86.HasAVX2,
		"avx512f": cpu.X86.HasAVX512F,
		"fma":     cpu.X86.HasFMA,
		"asimd":   cpu.ARM64.HasASIMD,
	}
}

func checkSample(sample models.NumericSample) error {
	if sample.Dims.Channels != models.Channels {
		return fmt.Errorf("sample has %d channels, want %d", sample.Dims.Channels, models.Channels)
	}
	if want := sample.Dims.Len(); want == 0 || len(sample.Data) != want {
		return fmt.Errorf("sample holds %d values, dims %s need %d", len(sample.Data), sample.Dims, want)
	}
	return nil
}
