package pipeline

import (
	"context"
	"time"

	"offline-enhancer/internal/config"
	"offline-enhancer/internal/debug/timing"
	"offline-enhancer/internal/inference"
	"offline-enhancer/internal/models"
)

// Processor is what front ends drive. The accessors feed health and metrics
// endpoints.
type Processor interface {
	ProcessImage(ctx context.Context, img *models.PixelBuffer) (*models.PixelBuffer, ImageReport, error)
	ProcessFile(ctx context.Context, input, output string) (ImageReport, error)
	ProcessBatch(ctx context.Context, inputs []string, outputDir string, progress models.ProgressFunc) BatchReport

	Options() config.Options
	Backend() inference.Backend
	Timing() *timing.Tracker
}

var _ Processor = (*Engine)(nil)

// ImageReport summarises one ProcessImage call
type ImageReport struct {
	SourceWidth  int           `json:"source_width"`
	SourceHeight int           `json:"source_height"`
	OutputWidth  int           `json:"output_width"`
	OutputHeight int           `json:"output_height"`
	Tiles        int           `json:"tiles"`
	Skipped      int           `json:"skipped"`
	Clamped      int           `json:"clamped"`
	Sharpened    bool          `json:"sharpened"`
	PostFilters  []string      `json:"post_filters,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// FileFailure records one file a batch could not process
type FileFailure struct {
	Path string
	Err  error
}

// BatchReport lists what a batch produced. Cancelled is set when the context
// was done before every input was visited.
type BatchReport struct {
	Total     int
	Succeeded []string
	Failed    []FileFailure
	Cancelled bool
}
