package inference

import (
	"context"
	"fmt"
	"image"
	"math"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/processing/codec"

	"github.com/disintegration/imaging"
)

var resampleFilters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// ResampleBackend upscales with a classic interpolation filter instead of a
// learned model. Values are quantised to 8 bits on the way through.
type ResampleBackend struct {
	scale      int
	filterName string
	filter     imaging.ResampleFilter
}

func NewResampleBackend(scale int, filterName string) (*ResampleBackend, error) {
	if filterName == "" {
		filterName = "lanczos"
	}
	filter, ok := resampleFilters[filterName]
	if !ok {
		return nil, fmt.Errorf("unknown resample filter %q", filterName)
	}
	return &ResampleBackend{scale: max(1, scale), filterName: filterName, filter: filter}, nil
}

func (r *ResampleBackend) Name() string { return "resample:" + r.filterName }

func (r *ResampleBackend) Scale() int { return r.scale }

func (r *ResampleBackend) Close() error { return nil }

func (r *ResampleBackend) Run(ctx context.Context, sample models.NumericSample) ([]float32, error) {
	if err := checkSample(sample); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, w := sample.Dims.Height, sample.Dims.Width
	src := planesToNRGBA(sample.Data, h, w)
	dst := imaging.Resize(src, w*r.scale, h*r.scale, r.filter)

	return nrgbaToPlanes(dst), nil
}

func planesToNRGBA(data []float32, h, w int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	for i := 0; i < plane; i++ {
		o := i * 4
		img.Pix[o] = unitToByte(data[i])
		img.Pix[o+1] = unitToByte(data[plane+i])
		img.Pix[o+2] = unitToByte(data[2*plane+i])
		img.Pix[o+3] = 255
	}
	return img
}

func nrgbaToPlanes(img *image.NRGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			i := y*w + x
			out[i] = float32(img.Pix[o]) / 255.0
			out[plane+i] = float32(img.Pix[o+1]) / 255.0
			out[2*plane+i] = float32(img.Pix[o+2]) / 255.0
		}
	}
	return out
}

func unitToByte(v float32) uint8 {
	return uint8(math.Round(float64(codec.Clip(v)) * 255))
}
