package models

import (
	"fmt"
	"strings"
)

// Dims describes an NCHW tensor. Batch is always 1 in this pipeline.
type Dims struct {
	Batch    int
	Channels int
	Height   int
	Width    int
}

// NewDims returns the dims of a single 3-channel sample
func NewDims(height, width int) Dims {
	return Dims{Batch: 1, Channels: Channels, Height: height, Width: width}
}

// Len is the number of elements a tensor with these dims holds
func (d Dims) Len() int {
	return d.Batch * d.Channels * d.Height * d.Width
}

// Shape returns the dims as an int64 slice in NCHW order
func (d Dims) Shape() []int64 {
	return []int64{int64(d.Batch), int64(d.Channels), int64(d.Height), int64(d.Width)}
}

// ScaledBy returns dims with height and width multiplied by scale
func (d Dims) ScaledBy(scale int) Dims {
	return Dims{Batch: d.Batch, Channels: d.Channels, Height: d.Height * scale, Width: d.Width * scale}
}

func (d Dims) String() string {
	return fmt.Sprintf("[%d %d %d %d]", d.Batch, d.Channels, d.Height, d.Width)
}

// NumericSample is a tile in channel-major RGB order with values in [0,1].
type NumericSample struct {
	Dims Dims
	Data []float32
}

// InferenceResult is a backend output in the same layout as NumericSample at
// the scaled size. Values are not guaranteed to be inside [0,1].
type InferenceResult struct {
	Dims Dims
	Data []float32
}

// ProgressEvent is a snapshot handed to a progress observer between files
type ProgressEvent struct {
	CurrentFileIndex int
	TotalFiles       int
	Fraction         float64
	CurrentFile      string
	Status           string
}

// ProgressFunc receives progress snapshots. It is called synchronously and must return quickly.
type ProgressFunc func(ProgressEvent)

// Device selects the execution provider used by the inference backend
type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
	DeviceDirectML
)

func (d Device) String() string {
	switch d {
	case DeviceCUDA:
		return "cuda"
	case DeviceDirectML:
		return "dml"
	default:
		return "cpu"
	}
}

func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return DeviceCPU, nil
	case "cuda", "gpu":
		return DeviceCUDA, nil
	case "dml", "directml":
		return DeviceDirectML, nil
	default:
		return DeviceCPU, fmt.Errorf("unknown device %q", s)
	}
}

// BlendMode selects how overlapping tile results are merged on the canvas
type BlendMode int

const (
	// BlendOverwrite lets the later tile win in overlapping pixels
	BlendOverwrite BlendMode = iota
	// BlendFeather averages overlaps with weights that ramp up from tile edges
	BlendFeather
)

func (m BlendMode) String() string {
	if m == BlendFeather {
		return "feather"
	}
	return "overwrite"
}

func ParseBlendMode(s string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return BlendOverwrite, nil
	case "feather":
		return BlendFeather, nil
	default:
		return BlendOverwrite, fmt.Errorf("unknown blend mode %q", s)
	}
}
