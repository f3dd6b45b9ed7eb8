// Package gui is a small fyne window that runs the batch driver over a list
// of files.
package gui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"offline-enhancer/internal/config"
	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/models"
	"offline-enhancer/internal/pipeline"

	"fyne.io/fyne/v2"
)

const component = "GUI"

// Controller owns the file list and the running batch
type Controller struct {
	view   *View
	base   config.Options
	logger logger.Logger
	parent context.Context

	mu            sync.Mutex
	files         []string
	running       bool
	processCancel context.CancelFunc
}

func NewController(ctx context.Context, base config.Options, log logger.Logger) *Controller {
	return &Controller{
		base:   base,
		logger: log,
		parent: ctx,
	}
}

func (c *Controller) SetView(view *View) {
	c.view = view
	c.view.SetFiles(nil)
}

// AddFiles opens a file dialog and appends the picked file to the list
func (c *Controller) AddFiles() {
	c.view.ShowFileDialog(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			c.view.ShowError(err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		c.mu.Lock()
		c.files = append(c.files, path)
		files := append([]string(nil), c.files...)
		c.mu.Unlock()

		c.view.SetFiles(files)
		c.view.SetStatus(fmt.Sprintf("%d file(s) queued", len(files)))
	})
}

func (c *Controller) ClearFiles() {
	c.mu.Lock()
	c.files = nil
	c.mu.Unlock()

	c.view.SetFiles(nil)
	c.view.SetProgress(0)
	c.view.SetStatus("Ready")
}

// Start asks for an output folder and runs the batch in the background
func (c *Controller) Start() {
	c.mu.Lock()
	files := append([]string(nil), c.files...)
	c.mu.Unlock()

	if len(files) == 0 {
		c.view.ShowError(errors.New("add at least one image first"))
		return
	}

	opts, err := optionsFrom(c.base, c.view.ModelPath(), c.view.ScaleLabel())
	if err != nil {
		c.view.ShowError(err)
		return
	}

	c.view.ShowFolderDialog(func(dir fyne.ListableURI, err error) {
		if err != nil {
			c.view.ShowError(err)
			return
		}
		if dir == nil {
			return
		}
		c.run(opts, files, dir.Path())
	})
}

func (c *Controller) run(opts config.Options, files []string, outputDir string) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	c.running = true
	c.processCancel = cancel
	c.mu.Unlock()

	c.view.SetRunning(true)
	c.view.SetProgress(0)
	c.view.SetStatus("Loading model...")

	go func() {
		defer c.finish(cancel)

		engine, err := pipeline.Open(opts, c.logger)
		if err != nil {
			c.logger.Error(component, err, map[string]interface{}{"model": opts.ModelPath})
			fyne.Do(func() {
				c.view.SetStatus("Model failed to load")
				c.view.ShowError(err)
			})
			return
		}
		defer engine.Close()

		report := engine.ProcessBatch(ctx, files, outputDir, func(ev models.ProgressEvent) {
			fyne.Do(func() {
				c.view.SetProgress(ev.Fraction)
				c.view.SetStatus(progressText(ev))
			})
		})

		fyne.Do(func() {
			c.view.SetStatus(summaryText(len(report.Succeeded), len(report.Failed), report.Cancelled))
			if len(report.Failed) > 0 {
				c.view.ShowInfo("Some files failed", failureText(report.Failed))
			}
		})
	}()
}

func (c *Controller) finish(cancel context.CancelFunc) {
	cancel()

	c.mu.Lock()
	c.running = false
	c.processCancel = nil
	c.mu.Unlock()

	fyne.Do(func() {
		c.view.SetRunning(false)
	})
}

// Stop cancels the running batch after the current file
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.processCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		fyne.Do(func() {
			c.view.SetStatus("Stopping after current file...")
		})
	}
}

func (c *Controller) Shutdown() {
	c.Stop()
}

// failureText lists failed files by base name, one per line
func failureText(failures []pipeline.FileFailure) string {
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = fmt.Sprintf("%s: %v", filepath.Base(f.Path), f.Err)
	}
	return strings.Join(lines, "\n")
}

func optionsFrom(base config.Options, modelPath, scaleLabel string) (config.Options, error) {
	opts := base

	if modelPath = strings.TrimSpace(modelPath); modelPath != "" {
		opts.ModelPath = modelPath
	}
	if opts.ModelPath == "" {
		return opts, errors.New("choose a model first")
	}

	if scaleLabel != "" {
		scale, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(scaleLabel), "x"))
		if err != nil {
			return opts, fmt.Errorf("invalid scale %q", scaleLabel)
		}
		opts.Scale = scale
	}

	return opts, opts.Validate()
}

func progressText(ev models.ProgressEvent) string {
	if ev.CurrentFile == "" {
		return ev.Status
	}
	return fmt.Sprintf("%s %d/%d: %s", ev.Status, ev.CurrentFileIndex, ev.TotalFiles, ev.CurrentFile)
}
