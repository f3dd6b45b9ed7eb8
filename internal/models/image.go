package models

import (
	"fmt"
	"image"
)

// Channels is the fixed channel count of every pixel buffer in the pipeline.
const Channels = 3

// PixelBuffer is an 8-bit, 3-channel image with interleaved BGR pixels.
// A buffer has a single owner at a time; stages hand it on instead of sharing it.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelBuffer allocates a zeroed buffer of the given size
func NewPixelBuffer(width, height int) *PixelBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}
}

// NewPixelBufferFromBytes wraps pix after checking its length against the dimensions
func NewPixelBufferFromBytes(width, height int, pix []uint8) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if len(pix) != width*height*Channels {
		return nil, fmt.Errorf("pixel data length %d does not match %dx%dx%d", len(pix), width, height, Channels)
	}
	return &PixelBuffer{Width: width, Height: height, Pix: pix}, nil
}

// Empty reports whether the buffer holds no pixels
func (p *PixelBuffer) Empty() bool {
	return p == nil || p.Width <= 0 || p.Height <= 0 || len(p.Pix) == 0
}

func (p *PixelBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// Offset returns the index of the first channel of pixel (x, y)
func (p *PixelBuffer) Offset(x, y int) int {
	return (y*p.Width + x) * Channels
}

func (p *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(p.Pix))
	copy(pix, p.Pix)
	return &PixelBuffer{Width: p.Width, Height: p.Height, Pix: pix}
}

// Crop copies the pixels inside r into a new buffer. r is clipped to the buffer bounds.
func (p *PixelBuffer) Crop(r image.Rectangle) *PixelBuffer {
	r = r.Intersect(p.Bounds())
	out := NewPixelBuffer(r.Dx(), r.Dy())
	rowBytes := r.Dx() * Channels
	for y := 0; y < r.Dy(); y++ {
		src := p.Offset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], p.Pix[src:src+rowBytes])
	}
	return out
}

// At returns the B, G, R values of pixel (x, y)
func (p *PixelBuffer) At(x, y int) (b, g, r uint8) {
	i := p.Offset(x, y)
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

func (p *PixelBuffer) Set(x, y int, b, g, r uint8) {
	i := p.Offset(x, y)
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = b, g, r
}

// Fill sets every pixel to the same BGR value
func (p *PixelBuffer) Fill(b, g, r uint8) {
	for i := 0; i+2 < len(p.Pix); i += Channels {
		p.Pix[i], p.Pix[i+1], p.Pix[i+2] = b, g, r
	}
}

// Tile is a region of a source image. X, Y, Width and Height are in source
// coordinates; Pixels is an independent copy of that region.
type Tile struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
	Pixels *PixelBuffer
}

// Rect returns the tile rectangle in source coordinates
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height)
}

// Scaled returns the rectangle the tile covers on a canvas enlarged by scale
func (t Tile) Scaled(scale int) image.Rectangle {
	return image.Rect(t.X*scale, t.Y*scale, (t.X+t.Width)*scale, (t.Y+t.Height)*scale)
}

func (t Tile) String() string {
	return fmt.Sprintf("tile#%d(%d,%d %dx%d)", t.Index, t.X, t.Y, t.Width, t.Height)
}
