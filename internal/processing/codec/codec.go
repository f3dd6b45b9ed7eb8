// Package codec converts tiles to the normalized channel-major layout a model
// consumes and converts model output back to 8-bit BGR pixels.
package codec

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"offline-enhancer/internal/models"
)

var (
	ErrSampleLength = errors.New("sample length does not match dimensions")
	ErrChannels     = errors.New("unsupported channel count")
)

// parallelThreshold is the pixel count above which rows are split across goroutines
const parallelThreshold = 256 * 256

// Encode converts BGR pixels into RGB channel-major floats in [0,1].
// The result holds exactly 3*w*h values with the R plane first.
func Encode(tile models.Tile) models.NumericSample {
	return EncodeBuffer(tile.Pixels)
}

// EncodeBuffer is Encode for a bare pixel buffer
func EncodeBuffer(pix *models.PixelBuffer) models.NumericSample {
	dims := models.NewDims(pix.Height, pix.Width)
	data := make([]float32, dims.Len())
	plane := pix.Width * pix.Height

	forRows(pix.Height, pix.Width*pix.Height, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * pix.Width
			for x := 0; x < pix.Width; x++ {
				i := row + x
				src := i * models.Channels
				// BGR in, RGB planes out
				data[i] = float32(pix.Pix[src+2]) / 255.0
				data[plane+i] = float32(pix.Pix[src+1]) / 255.0
				data[2*plane+i] = float32(pix.Pix[src]) / 255.0
			}
		}
	})

	return models.NumericSample{Dims: dims, Data: data}
}

// Decode converts channel-major RGB floats back into a BGR pixel buffer.
// Values are clipped to [0,1] before scaling to [0,255].
func Decode(data []float32, channels, height, width int) (*models.PixelBuffer, error) {
	if channels != models.Channels {
		return nil, fmt.Errorf("%w: %d", ErrChannels, channels)
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid output dimensions %dx%d", width, height)
	}
	want := channels * height * width
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d (%dx%dx%d)", ErrSampleLength, len(data), want, channels, height, width)
	}

	out := models.NewPixelBuffer(width, height)
	plane := width * height

	forRows(height, plane, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * width
			for x := 0; x < width; x++ {
				i := row + x
				dst := i * models.Channels
				out.Pix[dst] = toByte(data[2*plane+i])
				out.Pix[dst+1] = toByte(data[plane+i])
				out.Pix[dst+2] = toByte(data[i])
			}
		}
	})

	return out, nil
}

// DecodeResult decodes a backend result using its own dims
func DecodeResult(res models.InferenceResult) (*models.PixelBuffer, error) {
	return Decode(res.Data, res.Dims.Channels, res.Dims.Height, res.Dims.Width)
}

// Clip limits v to [0,1]. NaN maps to 0.
func Clip(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toByte(v float32) uint8 {
	return uint8(math.Round(float64(Clip(v)) * 255.0))
}

func forRows(height, pixels int, fn func(start, end int)) {
	workers := runtime.GOMAXPROCS(0)
	if pixels < parallelThreshold || workers < 2 || height < workers {
		fn(0, height)
		return
	}

	rowsPerWorker := height / workers
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if w == workers-1 {
			end = height
		}
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
