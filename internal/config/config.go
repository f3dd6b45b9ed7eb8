// Package config holds the engine options and loads them from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"offline-enhancer/internal/inference"
	"offline-enhancer/internal/models"
	"offline-enhancer/internal/processing/tiling"
)

const (
	DefaultScale    = 4
	DefaultStrength = 0.5
	DefaultTileSize = 256
	DefaultOverlap  = 16
	DefaultWorkers  = 1
	DefaultSuffix   = "_upscaled"

	// LibraryEnv names the environment variable holding the ONNX Runtime shared library path
	LibraryEnv = "ONNXRUNTIME_LIB"

	maxFileSize = 1 * 1024 * 1024
)

// Options configures one engine. The JSON field names are also the keys of
// the config file.
type Options struct {
	ModelPath   string  `json:"model"`
	Device      string  `json:"device"`
	Scale       int     `json:"scale"`
	Strength    float64 `json:"strength"`
	Denoise     float64 `json:"denoise"`
	TileSize    int     `json:"tile_size"`
	TileOverlap int     `json:"tile_overlap"`
	Blend       string  `json:"blend"`
	Workers     int     `json:"workers"`
	PoolSize    int     `json:"pool_size"`
	Threads     int     `json:"threads"`
	LibraryPath string  `json:"onnxruntime_lib"`
	Suffix      string  `json:"output_suffix"`
}

// Defaults returns the options used when nothing is configured
func Defaults() Options {
	return Options{
		Device:      models.DeviceCPU.String(),
		Scale:       DefaultScale,
		Strength:    DefaultStrength,
		TileSize:    DefaultTileSize,
		TileOverlap: DefaultOverlap,
		Blend:       models.BlendOverwrite.String(),
		Workers:     DefaultWorkers,
		PoolSize:    inference.DefaultPoolSize,
		LibraryPath: os.Getenv(LibraryEnv),
		Suffix:      DefaultSuffix,
	}
}

// Load reads a JSON config file over the defaults. Fields omitted from the
// file keep their default values, so partial files are fine.
func Load(path string) (Options, error) {
	opts := Defaults()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return opts, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return opts, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return opts, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return opts, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse config file: %w", err)
	}

	return opts, opts.Validate()
}

// Validate checks the options for values the pipeline cannot run with
func (o Options) Validate() error {
	if o.Scale < 1 {
		return fmt.Errorf("scale must be at least 1, got %d", o.Scale)
	}
	if err := tiling.Validate(o.TileSize, o.TileOverlap); err != nil {
		return err
	}
	if o.Denoise < 0 {
		return fmt.Errorf("denoise must not be negative, got %g", o.Denoise)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if _, err := models.ParseDevice(o.Device); err != nil {
		return err
	}
	if _, err := models.ParseBlendMode(o.Blend); err != nil {
		return err
	}
	return nil
}

// DeviceValue returns the parsed device, CPU when invalid
func (o Options) DeviceValue() models.Device {
	d, _ := models.ParseDevice(o.Device)
	return d
}

// BlendMode returns the parsed blend mode, overwrite when invalid
func (o Options) BlendMode() models.BlendMode {
	m, _ := models.ParseBlendMode(o.Blend)
	return m
}

// Inference returns the backend options derived from o
func (o Options) Inference() inference.Options {
	return inference.Options{
		ModelPath:   o.ModelPath,
		Scale:       o.Scale,
		Device:      o.DeviceValue(),
		PoolSize:    o.PoolSize,
		Threads:     o.Threads,
		LibraryPath: o.LibraryPath,
	}
}
