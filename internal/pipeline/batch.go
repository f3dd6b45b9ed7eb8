package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"offline-enhancer/internal/models"
)

const (
	StatusProcessing = "Processing..."
	StatusDone       = "Done"
	StatusCancelled  = "Cancelled"
)

// ProcessBatch runs every input through ProcessFile, writing
// <stem><suffix><ext> into outputDir. A failed file is logged and recorded;
// the loop moves on. ctx is only checked between files.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []string, outputDir string, progress models.ProgressFunc) BatchReport {
	emit := func(ev models.ProgressEvent) {
		if progress != nil {
			progress(ev)
		}
	}

	total := len(inputs)
	report := BatchReport{Total: total}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		e.log.Error(component, fmt.Errorf("create output directory: %w", err), map[string]interface{}{
			"output_dir": outputDir,
		})
	}

	visited := 0
	for i, input := range inputs {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		emit(models.ProgressEvent{
			CurrentFileIndex: i + 1,
			TotalFiles:       total,
			Fraction:         float64(i) / float64(total),
			CurrentFile:      input,
			Status:           StatusProcessing,
		})

		output := OutputPath(input, outputDir, e.opts.Suffix)
		if _, err := e.ProcessFile(ctx, input, output); err != nil {
			e.log.Error(component, err, map[string]interface{}{
				"file":  input,
				"index": i + 1,
				"total": total,
			})
			report.Failed = append(report.Failed, FileFailure{Path: input, Err: err})
		} else {
			report.Succeeded = append(report.Succeeded, output)
		}
		visited++
	}

	final := models.ProgressEvent{
		CurrentFileIndex: total,
		TotalFiles:       total,
		Fraction:         1.0,
		Status:           StatusDone,
	}
	if report.Cancelled {
		final.CurrentFileIndex = visited
		final.Fraction = float64(visited) / float64(total)
		final.Status = StatusCancelled
	}
	emit(final)

	e.log.Info(component, "batch finished", map[string]interface{}{
		"total":     total,
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
		"cancelled": report.Cancelled,
	})
	return report
}

// CollectInputs lists the regular files directly inside dir, sorted by name.
// Symlinks are followed; subdirectories are not descended into.
func CollectInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
