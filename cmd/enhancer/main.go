package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"offline-enhancer/internal/config"
	"offline-enhancer/internal/logger"
	"offline-enhancer/internal/models"
	"offline-enhancer/internal/pipeline"
	"offline-enhancer/internal/server"
	"offline-enhancer/internal/shutdown"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const AppVersion = "1.0.0"

// flagValues mirrors the command line. Only flags the user actually set
// override the config file.
type flagValues struct {
	configPath string
	input      string
	output     string
	batch      bool

	model    string
	scale    int
	device   string
	strength float64
	denoise  float64
	tile     int
	overlap  int
	blend    string
	workers  int
	poolSize int
	threads  int
	library  string
	suffix   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&flagValues{})
}

func buildRootCommand(fv *flagValues) *cobra.Command {
	root := &cobra.Command{
		Use:           "enhancer",
		Short:         "Tiled super-resolution for large images",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnhance(cmd, fv)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&fv.configPath, "config", "", "JSON config file")
	addEngineFlags(flags, fv)

	root.Flags().StringVarP(&fv.input, "input", "i", "", "input image, or input directory with --batch")
	root.Flags().StringVarP(&fv.output, "output", "o", "", "output image, or output directory with --batch")
	root.Flags().BoolVarP(&fv.batch, "batch", "b", false, "process every file of the input directory")

	root.AddCommand(newServeCommand(fv))
	return root
}

func addEngineFlags(flags *pflag.FlagSet, fv *flagValues) {
	d := config.Defaults()
	flags.StringVarP(&fv.model, "model", "m", d.ModelPath, "ONNX model path, nearest, resample:<filter> or a path containing stub")
	flags.IntVarP(&fv.scale, "scale", "s", d.Scale, "upscale factor")
	flags.StringVarP(&fv.device, "device", "d", d.Device, "execution device: cpu, cuda, dml")
	flags.Float64Var(&fv.strength, "strength", d.Strength, "unsharp mask strength, 0 disables sharpening")
	flags.Float64Var(&fv.denoise, "denoise", d.Denoise, "non-local means strength applied before sharpening, 0 disables it")
	flags.IntVar(&fv.tile, "tile", d.TileSize, "tile size in source pixels")
	flags.IntVar(&fv.overlap, "overlap", d.TileOverlap, "tile overlap in source pixels")
	flags.StringVar(&fv.blend, "blend", d.Blend, "overlap blending: overwrite or feather")
	flags.IntVar(&fv.workers, "workers", d.Workers, "tiles inferred in parallel")
	flags.IntVar(&fv.poolSize, "pool-size", d.PoolSize, "ONNX sessions kept in the pool")
	flags.IntVar(&fv.threads, "threads", d.Threads, "ONNX intra-op threads, 0 lets the runtime decide")
	flags.StringVar(&fv.library, "onnxruntime-lib", d.LibraryPath, "path to the ONNX Runtime shared library")
	flags.StringVar(&fv.suffix, "suffix", d.Suffix, "batch output name suffix")
}

// resolveOptions loads the config file, if any, and applies changed flags on top
func resolveOptions(flags *pflag.FlagSet, fv *flagValues) (config.Options, error) {
	opts := config.Defaults()
	if fv.configPath != "" {
		loaded, err := config.Load(fv.configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}

	overrides := map[string]func(){
		"model":           func() { opts.ModelPath = fv.model },
		"scale":           func() { opts.Scale = fv.scale },
		"device":          func() { opts.Device = fv.device },
		"strength":        func() { opts.Strength = fv.strength },
		"denoise":         func() { opts.Denoise = fv.denoise },
		"tile":            func() { opts.TileSize = fv.tile },
		"overlap":         func() { opts.TileOverlap = fv.overlap },
		"blend":           func() { opts.Blend = fv.blend },
		"workers":         func() { opts.Workers = fv.workers },
		"pool-size":       func() { opts.PoolSize = fv.poolSize },
		"threads":         func() { opts.Threads = fv.threads },
		"onnxruntime-lib": func() { opts.LibraryPath = fv.library },
		"suffix":          func() { opts.Suffix = fv.suffix },
	}
	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	return opts, opts.Validate()
}

func runEnhance(cmd *cobra.Command, fv *flagValues) error {
	log := logger.NewConsoleLogger(logger.LevelFromEnv())

	if fv.input == "" || fv.output == "" {
		cmd.Usage()
		return errors.New("--input and --output are required")
	}

	opts, err := resolveOptions(cmd.Flags(), fv)
	if err != nil {
		log.Error("CLI", err, nil)
		return err
	}

	engine, err := pipeline.Open(opts, log)
	if err != nil {
		log.Error("CLI", fmt.Errorf("engine init failed: %w", err), map[string]interface{}{
			"model": opts.ModelPath,
		})
		return err
	}
	defer engine.Close()

	shutdownManager := shutdown.NewManager(cmd.Context(), log)
	shutdownManager.Listen()
	defer shutdownManager.Shutdown()
	ctx := shutdownManager.Context()

	if !fv.batch {
		report, err := engine.ProcessFile(ctx, fv.input, fv.output)
		if err != nil {
			log.Error("CLI", err, nil)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d tiles, %d skipped, %s)\n",
			fv.input, fv.output, report.Tiles, report.Skipped, report.Duration.Round(time.Millisecond))
		return nil
	}

	inputs, err := pipeline.CollectInputs(fv.input)
	if err != nil {
		log.Error("CLI", err, nil)
		return err
	}

	out := cmd.OutOrStdout()
	report := engine.ProcessBatch(ctx, inputs, fv.output, func(ev models.ProgressEvent) {
		fmt.Fprintf(out, "[%3.0f%%] %d/%d %s %s\n", ev.Fraction*100, ev.CurrentFileIndex, ev.TotalFiles, ev.Status, ev.CurrentFile)
	})

	fmt.Fprintf(out, "%d written, %d failed\n", len(report.Succeeded), len(report.Failed))
	return nil
}

func newServeCommand(fv *flagValues) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upscaler over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.NewZerolog(os.Stderr, logger.LevelFromEnv())

			opts, err := resolveOptions(cmd.Flags(), fv)
			if err != nil {
				log.Error("CLI", err, nil)
				return err
			}

			engine, err := pipeline.Open(opts, log)
			if err != nil {
				log.Error("CLI", fmt.Errorf("engine init failed: %w", err), nil)
				return err
			}
			defer engine.Close()

			srv := server.New(engine, log).HTTPServer(addr)

			shutdownManager := shutdown.NewManager(cmd.Context(), log)
			shutdownManager.Register("http", srv)
			shutdownManager.Listen()

			log.Info("CLI", "server listening", map[string]interface{}{"addr": addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("CLI", err, nil)
				shutdownManager.Shutdown()
				return err
			}
			<-shutdownManager.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}
