// Package compose places scaled tile results onto the output canvas.
package compose

import (
	"image"
	"math"

	"offline-enhancer/internal/models"
)

// Blender accumulates tile results into a canvas
type Blender interface {
	// Place writes one tile result. It reports whether the result had to be
	// clamped to the canvas bounds.
	Place(tile models.Tile, result *models.PixelBuffer) bool
	// Canvas returns the assembled image. It is called once, after the last Place.
	Canvas() *models.PixelBuffer
	Mode() models.BlendMode
}

// NewBlender returns the blender for mode sized for a srcW x srcH source image
func NewBlender(mode models.BlendMode, srcW, srcH, scale, overlap int) Blender {
	if mode == models.BlendFeather {
		return NewFeather(srcW, srcH, scale, overlap)
	}
	return NewOverwrite(models.NewPixelBuffer(srcW*scale, srcH*scale), scale)
}

// targetRect is the canvas region a result lands on, clipped to what the
// result actually holds and to the canvas.
func targetRect(canvas image.Rectangle, tile models.Tile, result *models.PixelBuffer, scale int) (image.Rectangle, bool) {
	want := tile.Scaled(scale)
	held := image.Rectangle{Min: want.Min, Max: want.Min.Add(image.Pt(result.Width, result.Height))}
	dst := want.Intersect(held).Intersect(canvas)
	return dst, dst != want
}

// Composite copies result onto canvas at the tile's scaled position. Pixels
// already on the canvas are overwritten. Anything outside the canvas is dropped.
func Composite(canvas *models.PixelBuffer, tile models.Tile, result *models.PixelBuffer, scale int) bool {
	dst, clamped := targetRect(canvas.Bounds(), tile, result, scale)
	if dst.Empty() {
		return true
	}

	rowBytes := dst.Dx() * models.Channels
	srcX := dst.Min.X - tile.X*scale
	srcY := dst.Min.Y - tile.Y*scale
	for y := 0; y < dst.Dy(); y++ {
		d := canvas.Offset(dst.Min.X, dst.Min.Y+y)
		s := result.Offset(srcX, srcY+y)
		copy(canvas.Pix[d:d+rowBytes], result.Pix[s:s+rowBytes])
	}
	return clamped
}

// Overwrite is the baseline policy: the later tile wins where tiles overlap
type Overwrite struct {
	canvas *models.PixelBuffer
	scale  int
}

func NewOverwrite(canvas *models.PixelBuffer, scale int) *Overwrite {
	return &Overwrite{canvas: canvas, scale: scale}
}

func (o *Overwrite) Place(tile models.Tile, result *models.PixelBuffer) bool {
	return Composite(o.canvas, tile, result, o.scale)
}

func (o *Overwrite) Canvas() *models.PixelBuffer { return o.canvas }

func (o *Overwrite) Mode() models.BlendMode { return models.BlendOverwrite }

// Feather blends overlaps with a weight that rises linearly across the overlap
// band on every tile side that borders another tile. Image borders are not
// ramped. Accumulation is commutative, so placement order does not matter.
type Feather struct {
	width  int
	height int
	srcW   int
	srcH   int
	scale  int
	ramp   float32
	sum    []float32
	weight []float32
}

func NewFeather(srcW, srcH, scale, overlap int) *Feather {
	w, h := srcW*scale, srcH*scale
	return &Feather{
		width:  w,
		height: h,
		srcW:   srcW,
		srcH:   srcH,
		scale:  scale,
		ramp:   float32(overlap * scale),
		sum:    make([]float32, w*h*models.Channels),
		weight: make([]float32, w*h),
	}
}

func (f *Feather) Mode() models.BlendMode { return models.BlendFeather }

func (f *Feather) Place(tile models.Tile, result *models.PixelBuffer) bool {
	bounds := image.Rect(0, 0, f.width, f.height)
	dst, clamped := targetRect(bounds, tile, result, f.scale)
	if dst.Empty() {
		return true
	}

	full := tile.Scaled(f.scale)
	left, right := tile.X > 0, tile.X+tile.Width < f.srcW
	top, bottom := tile.Y > 0, tile.Y+tile.Height < f.srcH

	wx := make([]float32, dst.Dx())
	for i := range wx {
		cx := dst.Min.X + i
		wx[i] = f.edgeWeight(cx-full.Min.X, full.Max.X-1-cx, left, right)
	}

	originX, originY := tile.X*f.scale, tile.Y*f.scale
	for cy := dst.Min.Y; cy < dst.Max.Y; cy++ {
		wy := f.edgeWeight(cy-full.Min.Y, full.Max.Y-1-cy, top, bottom)
		for i, cx := 0, dst.Min.X; cx < dst.Max.X; i, cx = i+1, cx+1 {
			w := wx[i] * wy
			p := cy*f.width + cx
			s := result.Offset(cx-originX, cy-originY)
			d := p * models.Channels
			f.sum[d] += float32(result.Pix[s]) * w
			f.sum[d+1] += float32(result.Pix[s+1]) * w
			f.sum[d+2] += float32(result.Pix[s+2]) * w
			f.weight[p] += w
		}
	}
	return clamped
}

// edgeWeight is 1 in the tile interior and falls towards 0 over the ramp
// width at ramped edges. The half-pixel offset keeps it strictly positive.
func (f *Feather) edgeWeight(fromStart, fromEnd int, rampStart, rampEnd bool) float32 {
	w := float32(1)
	if f.ramp <= 0 {
		return w
	}
	if rampStart {
		w = min(w, (float32(fromStart)+0.5)/f.ramp)
	}
	if rampEnd {
		w = min(w, (float32(fromEnd)+0.5)/f.ramp)
	}
	return w
}

// Canvas normalises the accumulated sums. Pixels no tile reached stay black.
func (f *Feather) Canvas() *models.PixelBuffer {
	out := models.NewPixelBuffer(f.width, f.height)
	for p, w := range f.weight {
		if w <= 0 {
			continue
		}
		d := p * models.Channels
		for c := 0; c < models.Channels; c++ {
			v := math.Round(float64(f.sum[d+c] / w))
			out.Pix[d+c] = uint8(max(0, min(255, v)))
		}
	}
	return out
}
