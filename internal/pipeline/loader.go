package pipeline

import (
	"bytes"
	"fmt"
	"os"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/conversion"
	"offline-enhancer/internal/opencv/safe"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// LoadImage reads and decodes an image file into a BGR buffer. The file is
// read into memory first so that non-ASCII paths work on every platform.
func LoadImage(path string) (*models.PixelBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return DecodeImage(data)
}

// DecodeImage decodes any container OpenCV understands. Alpha is dropped and
// grayscale is expanded to three channels. Containers OpenCV was built
// without (GIF on most builds) go through the Go image decoders instead.
func DecodeImage(data []byte) (*models.PixelBuffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecode)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		mat.Close()
		return decodeFallback(data)
	}

	decoded, err := safe.Adopt(mat, "decoded_image")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer decoded.Close()

	if err := safe.ValidateDimensions(decoded.Cols(), decoded.Rows(), "decode"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return conversion.MatToBuffer(decoded)
}

func decodeFallback(data []byte) (*models.PixelBuffer, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognised image data", ErrDecode)
	}

	b := img.Bounds()
	if err := safe.ValidateDimensions(b.Dx(), b.Dy(), "decode"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return conversion.ImageToBuffer(img), nil
}
