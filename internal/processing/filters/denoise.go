package filters

import (
	"context"
	"fmt"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/conversion"
	"offline-enhancer/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Non-local means window sizes, as recommended by OpenCV
const (
	DenoiseTemplateWindow = 7
	DenoiseSearchWindow   = 21
)

// Denoise runs colored non-local means with filter strength h for both
// luminance and color. h <= 0 returns an unchanged copy.
func Denoise(img *models.PixelBuffer, h float64) (*models.PixelBuffer, error) {
	if h <= 0 {
		return img.Clone(), nil
	}
	if img.Empty() {
		return nil, fmt.Errorf("cannot denoise an empty image")
	}

	src, err := conversion.BufferToMat(img, "denoise_src")
	if err != nil {
		return nil, err
	}
	defer src.Close()

	result, err := safe.NewBGR(img.Width, img.Height, "denoise_out")
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}
	defer result.Close()

	gocv.FastNlMeansDenoisingColoredWithParams(src.GetMat(), result.Ptr(), float32(h), float32(h),
		DenoiseTemplateWindow, DenoiseSearchWindow)

	return conversion.MatToBuffer(result)
}

// NonLocalMeans is the post-processing step wrapping Denoise. It runs ahead
// of sharpening so the mask does not amplify noise.
type NonLocalMeans struct{}

func NewNonLocalMeans() *NonLocalMeans {
	return &NonLocalMeans{}
}

func (n *NonLocalMeans) Name() string {
	return "non_local_means"
}

func (n *NonLocalMeans) ShouldExecute(params map[string]interface{}) bool {
	h, ok := params["denoise_strength"].(float64)
	return ok && h > 0
}

func (n *NonLocalMeans) Apply(ctx context.Context, input *models.PixelBuffer, params map[string]interface{}) (*models.PixelBuffer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	h, _ := params["denoise_strength"].(float64)
	return Denoise(input, h)
}
