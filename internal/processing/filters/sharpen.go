package filters

import (
	"context"
	"fmt"
	"image"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/conversion"
	"offline-enhancer/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// SharpenSigma is the Gaussian sigma of the unsharp mask blur
const SharpenSigma = 3.0

// Sharpen applies an unsharp mask: img*(1+strength) - blur(img)*strength,
// saturated to [0,255]. strength <= 0 returns an unchanged copy.
func Sharpen(img *models.PixelBuffer, strength float64) (*models.PixelBuffer, error) {
	if strength <= 0 {
		return img.Clone(), nil
	}
	if img.Empty() {
		return nil, fmt.Errorf("cannot sharpen an empty image")
	}

	src, err := conversion.BufferToMat(img, "sharpen_src")
	if err != nil {
		return nil, err
	}
	defer src.Close()

	blurred, err := safe.NewBGR(img.Width, img.Height, "sharpen_blur")
	if err != nil {
		return nil, fmt.Errorf("failed to create blur Mat: %w", err)
	}
	defer blurred.Close()

	gocv.GaussianBlur(src.GetMat(), blurred.Ptr(), image.Point{}, SharpenSigma, SharpenSigma, gocv.BorderDefault)

	weighted, err := safe.NewBGR(img.Width, img.Height, "sharpen_out")
	if err != nil {
		return nil, fmt.Errorf("failed to create output Mat: %w", err)
	}
	defer weighted.Close()

	gocv.AddWeighted(src.GetMat(), 1.0+strength, blurred.GetMat(), -strength, 0, weighted.Ptr())

	return conversion.MatToBuffer(weighted)
}

// UnsharpMask is the post-processing step wrapping Sharpen
type UnsharpMask struct{}

func NewUnsharpMask() *UnsharpMask {
	return &UnsharpMask{}
}

func (u *UnsharpMask) Name() string {
	return "unsharp_mask"
}

func (u *UnsharpMask) ShouldExecute(params map[string]interface{}) bool {
	strength, ok := params["sharpen_strength"].(float64)
	return ok && strength > 0
}

func (u *UnsharpMask) Apply(ctx context.Context, input *models.PixelBuffer, params map[string]interface{}) (*models.PixelBuffer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	strength, _ := params["sharpen_strength"].(float64)
	return Sharpen(input, strength)
}
