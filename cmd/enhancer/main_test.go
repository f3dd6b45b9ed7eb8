package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"offline-enhancer/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOptionsFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enhancer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": "stub.onnx", "scale": 2, "tile_size": 128}`), 0o644))

	fv := &flagValues{}
	cmd := buildRootCommand(fv)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--tile", "64", "--blend", "feather", "--denoise", "4"}))

	opts, err := resolveOptions(cmd.Flags(), fv)
	require.NoError(t, err)

	assert.Equal(t, "stub.onnx", opts.ModelPath)
	assert.Equal(t, 2, opts.Scale)
	assert.Equal(t, 64, opts.TileSize)
	assert.Equal(t, "feather", opts.Blend)
	assert.Equal(t, 4.0, opts.Denoise)
	assert.Equal(t, config.DefaultOverlap, opts.TileOverlap)
}

func TestResolveOptionsRejectsBadGeometry(t *testing.T) {
	fv := &flagValues{}
	cmd := buildRootCommand(fv)
	require.NoError(t, cmd.ParseFlags([]string{"--tile", "16", "--overlap", "16"}))

	_, err := resolveOptions(cmd.Flags(), fv)
	assert.Error(t, err)
}

func TestRunRequiresInputAndOutput(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--model", "nearest"})

	assert.Error(t, cmd.Execute())
}

func TestRunFailsOnMissingModel(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--input", filepath.Join(dir, "in.png"),
		"--output", filepath.Join(dir, "out.png"),
		"--model", filepath.Join(dir, "missing.onnx"),
	})

	assert.Error(t, cmd.Execute())
}

func TestBatchRunWithStubModel(t *testing.T) {
	in := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.png"), []byte("not an image"), 0o644))

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--batch", "--input", in, "--output", outDir, "--model", "stub", "--scale", "2"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "0 written, 1 failed")
	assert.Contains(t, out.String(), "Done")
}
