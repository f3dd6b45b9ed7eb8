package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/conversion"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// JPEGQuality is used for every JPEG the pipeline writes
const JPEGQuality = 95

var formatsByExtension = map[string]gocv.FileExt{
	".png":  gocv.PNGFileExt,
	".jpg":  gocv.JPEGFileExt,
	".jpeg": gocv.JPEGFileExt,
	".bmp":  gocv.FileExt(".bmp"),
	".tif":  gocv.FileExt(".tif"),
	".tiff": gocv.FileExt(".tiff"),
	".webp": gocv.FileExt(".webp"),
}

// imagingFormats are containers OpenCV builds usually lack; they are written
// with the Go encoders instead.
var imagingFormats = map[string]imaging.Format{
	".gif": imaging.GIF,
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FormatFor maps a file extension (with or without the dot) to an OpenCV
// encoder. An empty extension selects PNG.
func FormatFor(ext string) (gocv.FileExt, error) {
	ext = normalizeExt(ext)
	if ext == "" {
		return gocv.PNGFileExt, nil
	}
	format, ok := formatsByExtension[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return format, nil
}

// EncodeImage encodes img in the container named by ext
func EncodeImage(img *models.PixelBuffer, ext string) ([]byte, error) {
	if format, ok := imagingFormats[normalizeExt(ext)]; ok {
		return encodeWithImaging(img, format)
	}

	format, err := FormatFor(ext)
	if err != nil {
		return nil, err
	}

	mat, err := conversion.BufferToMat(img, "encode")
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	var buf *gocv.NativeByteBuffer
	if format == gocv.JPEGFileExt {
		buf, err = gocv.IMEncodeWithParams(format, mat.GetMat(), []int{gocv.IMWriteJpegQuality, JPEGQuality})
	} else {
		buf, err = gocv.IMEncode(format, mat.GetMat())
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func encodeWithImaging(img *models.PixelBuffer, format imaging.Format) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("cannot encode an empty image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, conversion.BufferToImage(img), format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// SaveImage writes img to path using the container implied by its extension
func SaveImage(path string, img *models.PixelBuffer) error {
	data, err := EncodeImage(img, filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// OutputPath names the batch output for input inside dir: <stem><suffix><ext>
func OutputPath(input, dir, suffix string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+suffix+ext)
}
