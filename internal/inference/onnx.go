package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/models"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initialises the process-wide ONNX Runtime environment on
// first use. Every successful call must be paired with releaseEnvironment.
func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// ModelSession is one loaded copy of the model
type ModelSession struct {
	Session *ort.DynamicAdvancedSession
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
}

// ONNXBackend runs tiles through an ONNX super-resolution model. Tile sizes
// vary across an image, so sessions are created with dynamic shapes.
type ONNXBackend struct {
	modelPath  string
	scale      int
	inputName  string
	outputName string
	pool       *SessionPool[*ModelSession]
	log        logger.Logger
}

func NewONNXBackend(opts Options, log logger.Logger) (*ONNXBackend, error) {
	modelPath := filepath.Clean(opts.ModelPath)
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("stat model: %w", err)
	}

	if err := acquireEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: reading model io: %v", ErrModelLoad, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: model declares %d inputs and %d outputs", ErrModelLoad, len(inputs), len(outputs))
	}

	b := &ONNXBackend{
		modelPath:  modelPath,
		scale:      opts.Scale,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		log:        log,
	}

	factory := func() (*ModelSession, error) {
		return b.newSession(opts)
	}
	pool, err := NewSessionPool[*ModelSession](factory, opts.PoolSize)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	b.pool = pool

	log.Info("ONNXBackend", "model loaded", map[string]interface{}{
		"model":     modelPath,
		"input":     b.inputName,
		"output":    b.outputName,
		"pool_size": pool.Size(),
	})
	return b, nil
}

func (b *ONNXBackend) newSession(opts Options) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	b.appendProvider(options, opts.Device)

	session, err := ort.NewDynamicAdvancedSession(
		b.modelPath,
		[]string{b.inputName},
		[]string{b.outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{Session: session}, nil
}

// appendProvider enables the requested device. A provider that cannot be
// enabled leaves the session on CPU.
func (b *ONNXBackend) appendProvider(options *ort.SessionOptions, device models.Device) {
	var err error
	switch device {
	case models.DeviceCUDA:
		var cudaOptions *ort.CUDAProviderOptions
		cudaOptions, err = ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			err = options.AppendExecutionProviderCUDA(cudaOptions)
		}
	case models.DeviceDirectML:
		err = options.AppendExecutionProviderDirectML(0)
	default:
		return
	}

	if err != nil {
		b.log.Warning("ONNXBackend", "execution provider unavailable, falling back to CPU", map[string]interface{}{
			"device": device.String(),
			"error":  err.Error(),
		})
	}
}

func (b *ONNXBackend) Name() string { return "onnx:" + filepath.Base(b.modelPath) }

func (b *ONNXBackend) Scale() int { return b.scale }

// Metrics exposes the session pool counters
func (b *ONNXBackend) Metrics() PoolSnapshot {
	return b.pool.GetMetrics()
}

func (b *ONNXBackend) Run(ctx context.Context, sample models.NumericSample) ([]float32, error) {
	if err := checkSample(sample); err != nil {
		return nil, err
	}

	session, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer b.pool.Release(session)

	input, err := ort.NewTensor(ort.NewShape(sample.Dims.Shape()...), sample.Data)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	outDims := sample.Dims.ScaledBy(b.scale)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outDims.Shape()...))
	if err != nil {
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}
	defer output.Destroy()

	if err := session.Session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	data := output.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

func (b *ONNXBackend) Close() error {
	if b.pool != nil {
		b.pool.Destroy()
	}
	return releaseEnvironment()
}
