package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"offline-enhancer/internal/inference"
	"offline-enhancer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFormatFor(t *testing.T) {
	tests := []struct {
		ext     string
		want    gocv.FileExt
		wantErr bool
	}{
		{ext: "", want: gocv.PNGFileExt},
		{ext: ".png", want: gocv.PNGFileExt},
		{ext: "PNG", want: gocv.PNGFileExt},
		{ext: ".JPEG", want: gocv.JPEGFileExt},
		{ext: ".jpg", want: gocv.JPEGFileExt},
		{ext: ".bmp", want: gocv.FileExt(".bmp")},
		{ext: ".gif", wantErr: true},
		{ext: ".xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, err := FormatFor(tt.ext)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPNGRoundTripIsLossless(t *testing.T) {
	src := gradient(13, 9)

	data, err := EncodeImage(src, ".png")
	require.NoError(t, err)

	got, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, src.Width, got.Width)
	assert.Equal(t, src.Height, got.Height)
	assert.Equal(t, src.Pix, got.Pix)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image at all"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeImage(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSaveImageUnsupportedExtension(t *testing.T) {
	err := SaveImage(filepath.Join(t.TempDir(), "out.xyz"), gradient(4, 4))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "photo_upscaled.jpg"), OutputPath(filepath.Join("in", "photo.jpg"), "out", "_upscaled"))
	assert.Equal(t, filepath.Join("out", "noext_upscaled"), OutputPath("noext", "out", "_upscaled"))
	assert.Equal(t, filepath.Join("out", "archive.tar_x.gz"), OutputPath("archive.tar.gz", "out", "_x"))
}

func TestDecodeImageGIFFallback(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 5, 3), color.Palette{
		color.RGBA{A: 255},
		color.RGBA{R: 255, A: 255},
	})
	src.SetColorIndex(4, 2, 1)

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, src, nil))

	got, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Width)
	assert.Equal(t, 3, got.Height)

	b, g, r := got.At(4, 2)
	assert.Equal(t, [3]uint8{0, 0, 255}, [3]uint8{b, g, r})
}

func writeGIF(t *testing.T, path string, w, h int) {
	t.Helper()
	src := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{
		color.RGBA{A: 255},
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
	})
	src.SetColorIndex(w-1, h-1, 1)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gif.Encode(f, src, nil))
}

func TestSaveImageGIF(t *testing.T) {
	img := models.NewPixelBuffer(4, 3)
	img.Set(3, 2, 255, 255, 255)

	path := filepath.Join(t.TempDir(), "out.gif")
	require.NoError(t, SaveImage(path, img))

	got, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Width)
	assert.Equal(t, 3, got.Height)
	b, g, r := got.At(3, 2)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{b, g, r})
	b, g, r = got.At(0, 0)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{b, g, r})
}

func TestProcessFileKeepsGIFContainer(t *testing.T) {
	engine := newTestEngine(t, testOptions(2, 8, 2), inference.NewNearestBackend(2))

	dir := t.TempDir()
	in := filepath.Join(dir, "anim.gif")
	writeGIF(t, in, 5, 3)

	out := OutputPath(in, filepath.Join(dir, "out"), "_upscaled")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))

	_, err := engine.ProcessFile(context.Background(), in, out)
	require.NoError(t, err)

	written, err := LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, 10, written.Width)
	assert.Equal(t, 6, written.Height)
	b, g, r := written.At(9, 5)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{b, g, r})
}
