// Package pipeline drives the tiled upscale of one image and of a batch of
// files: split, encode, infer, decode, composite and sharpen.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"offline-enhancer/internal/config"
	"offline-enhancer/internal/debug/timing"
	"offline-enhancer/internal/inference"
	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/safe"
	"offline-enhancer/internal/processing/chain"
	"offline-enhancer/internal/processing/codec"
	"offline-enhancer/internal/processing/compose"
	"offline-enhancer/internal/processing/filters"
	"offline-enhancer/internal/processing/tiling"

	"golang.org/x/sync/errgroup"
)

const component = "Pipeline"

// Engine owns one backend and runs images through it. It keeps no state
// between images, so one engine may serve many calls.
type Engine struct {
	opts    config.Options
	backend inference.Backend
	log     logger.Logger
	timing  *timing.Tracker
	post    *chain.ProcessingChain
}

// Open validates opts, opens the backend they name and returns an engine on it
func Open(opts config.Options, log logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	backend, err := inference.Open(opts.Inference(), log)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(opts, backend, log, timing.NewTracker())
	if err != nil {
		backend.Close()
		return nil, err
	}
	return engine, nil
}

// NewEngine wraps an already opened backend
func NewEngine(opts config.Options, backend inference.Backend, log logger.Logger, tracker *timing.Tracker) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if tracker == nil {
		tracker = timing.NewTracker()
	}

	e := &Engine{
		opts:    opts,
		backend: backend,
		log:     log,
		timing:  tracker,
		post:    chain.NewProcessingChain(filters.NewNonLocalMeans(), filters.NewUnsharpMask()),
	}
	if err := e.Initialize(); err != nil {
		return nil, err
	}

	e.log.Info(component, "engine ready", map[string]interface{}{
		"backend":   backend.Name(),
		"scale":     opts.Scale,
		"tile_size": opts.TileSize,
		"overlap":   opts.TileOverlap,
		"blend":     opts.BlendMode().String(),
		"workers":   opts.Workers,
		"post":      e.post.Names(),
	})
	return e, nil
}

// Initialize checks that options and backend agree
func (e *Engine) Initialize() error {
	if err := e.opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if e.backend.Scale() != e.opts.Scale {
		return fmt.Errorf("%w: backend %s scales by %d, options ask for %d",
			inference.ErrInvalidScale, e.backend.Name(), e.backend.Scale(), e.opts.Scale)
	}
	return nil
}

func (e *Engine) Options() config.Options { return e.opts }

func (e *Engine) Backend() inference.Backend { return e.backend }

func (e *Engine) Timing() *timing.Tracker { return e.timing }

func (e *Engine) Close() error {
	return e.backend.Close()
}

type tileOutcome struct {
	pixels *models.PixelBuffer
	err    error
}

// ProcessImage upscales img. Tiles whose inference fails or returns malformed
// data are skipped and leave their canvas region as written by other tiles
// (black when none). An empty source or an output canvas larger than
// safe.MaxDimension fails before any tile is inferred.
func (e *Engine) ProcessImage(ctx context.Context, img *models.PixelBuffer) (*models.PixelBuffer, ImageReport, error) {
	start := time.Now()
	report := ImageReport{}

	if img.Empty() {
		return nil, report, ErrEmptyImage
	}

	scale := e.opts.Scale
	report.SourceWidth, report.SourceHeight = img.Width, img.Height
	report.OutputWidth, report.OutputHeight = img.Width*scale, img.Height*scale

	if err := safe.ValidateDimensions(report.OutputWidth, report.OutputHeight, "output canvas"); err != nil {
		return nil, report, err
	}

	tiles, err := tiling.Split(img, e.opts.TileSize, e.opts.TileOverlap)
	if err != nil {
		if errors.Is(err, tiling.ErrEmptyImage) {
			return nil, report, ErrEmptyImage
		}
		return nil, report, fmt.Errorf("tiling failed: %w", err)
	}
	report.Tiles = len(tiles)

	e.log.Debug(component, "image split", map[string]interface{}{
		"width":  img.Width,
		"height": img.Height,
		"tiles":  len(tiles),
	})

	blender := compose.NewBlender(e.opts.BlendMode(), img.Width, img.Height, scale, e.opts.TileOverlap)

	// Inference must not be interrupted mid-image; cancellation is honoured
	// between files by the batch loop.
	ready := e.inferTiles(context.WithoutCancel(ctx), tiles)

	for i, tile := range tiles {
		outcome := <-ready[i]
		if outcome.err != nil {
			report.Skipped++
			e.log.Warning(component, "tile skipped", map[string]interface{}{
				"tile_index": tile.Index,
				"x":          tile.X,
				"y":          tile.Y,
				"width":      tile.Width,
				"height":     tile.Height,
				"error":      outcome.err.Error(),
			})
			continue
		}

		placeStart := time.Now()
		if blender.Place(tile, outcome.pixels) {
			report.Clamped++
			e.log.Debug(component, "tile clamped to canvas", map[string]interface{}{
				"tile_index": tile.Index,
			})
		}
		e.timing.Record("composite", time.Since(placeStart))
	}

	canvas := blender.Canvas()

	params := map[string]interface{}{
		"denoise_strength": e.opts.Denoise,
		"sharpen_strength": e.opts.Strength,
	}
	report.PostFilters = e.post.Enabled(params)
	postCtx := e.timing.StartTiming(ctx, "post_filter")
	result, err := e.post.Execute(context.WithoutCancel(postCtx), canvas, params)
	e.timing.EndTiming(postCtx)
	if err != nil {
		return nil, report, &ProcessingError{Stage: "post_filter", Cause: err}
	}
	report.Sharpened = slices.Contains(report.PostFilters, filters.NewUnsharpMask().Name())

	report.Duration = time.Since(start)
	e.timing.Record("image", report.Duration)

	e.log.Info(component, "image processed", map[string]interface{}{
		"input_size":  fmt.Sprintf("%dx%d", report.SourceWidth, report.SourceHeight),
		"output_size": fmt.Sprintf("%dx%d", report.OutputWidth, report.OutputHeight),
		"tiles":       report.Tiles,
		"skipped":     report.Skipped,
		"duration_ms": report.Duration.Milliseconds(),
	})

	return result, report, nil
}

// inferTiles starts inference for every tile and returns one buffered channel
// per tile. At most opts.Workers tiles are in flight; each channel receives
// exactly one outcome.
func (e *Engine) inferTiles(ctx context.Context, tiles []models.Tile) []chan tileOutcome {
	ready := make([]chan tileOutcome, len(tiles))
	for i := range ready {
		ready[i] = make(chan tileOutcome, 1)
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(e.opts.Workers)
		for i := range tiles {
			tile := tiles[i]
			out := ready[i]
			g.Go(func() error {
				pixels, err := e.runTile(ctx, tile)
				out <- tileOutcome{pixels: pixels, err: err}
				return nil
			})
		}
		g.Wait()
	}()

	return ready
}

func (e *Engine) runTile(ctx context.Context, tile models.Tile) (*models.PixelBuffer, error) {
	scale := e.opts.Scale

	encodeCtx := e.timing.StartTiming(ctx, "encode")
	sample := codec.Encode(tile)
	e.timing.EndTiming(encodeCtx)

	inferCtx := e.timing.StartTiming(ctx, "inference")
	data, err := e.backend.Run(inferCtx, sample)
	e.timing.EndTiming(inferCtx)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyResult
	}

	result := models.InferenceResult{Dims: sample.Dims.ScaledBy(scale), Data: data}

	decodeCtx := e.timing.StartTiming(ctx, "decode")
	pixels, err := codec.DecodeResult(result)
	e.timing.EndTiming(decodeCtx)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return pixels, nil
}

// ProcessFile loads input, upscales it and writes output. A load failure is
// returned as is; the caller decides whether it ends the run.
func (e *Engine) ProcessFile(ctx context.Context, input, output string) (ImageReport, error) {
	loadCtx := e.timing.StartTiming(ctx, "load")
	img, err := LoadImage(input)
	e.timing.EndTiming(loadCtx)
	if err != nil {
		return ImageReport{}, &ProcessingError{Stage: "load", Path: input, Cause: err}
	}

	result, report, err := e.ProcessImage(ctx, img)
	if err != nil {
		return report, &ProcessingError{Stage: "process", Path: input, Cause: err}
	}

	saveCtx := e.timing.StartTiming(ctx, "save")
	err = SaveImage(output, result)
	e.timing.EndTiming(saveCtx)
	if err != nil {
		return report, &ProcessingError{Stage: "save", Path: output, Cause: err}
	}

	e.log.Info(component, "file written", map[string]interface{}{
		"input":  input,
		"output": output,
	})
	return report, nil
}
