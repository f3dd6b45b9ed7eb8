// Package tiling partitions a source image into overlapping tiles.
package tiling

import (
	"errors"
	"fmt"
	"image"

	"offline-enhancer/internal/models"
)

var (
	ErrInvalidGeometry = errors.New("invalid tile geometry")
	ErrEmptyImage      = errors.New("image is empty")
)

// Validate checks tileSize > 0 and 0 <= overlap < tileSize
func Validate(tileSize, overlap int) error {
	if tileSize <= 0 {
		return fmt.Errorf("%w: tile size %d must be positive", ErrInvalidGeometry, tileSize)
	}
	if overlap < 0 || overlap >= tileSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidGeometry, overlap, tileSize)
	}
	return nil
}

// Origins returns the tile start positions along one axis of the given length.
// The walk stops at the first tile that reaches the end of the axis.
func Origins(length, tileSize, overlap int) []int {
	if length <= 0 {
		return nil
	}
	stride := tileSize - overlap
	origins := make([]int, 0, length/stride+1)
	for pos := 0; pos < length; pos += stride {
		origins = append(origins, pos)
		if pos+tileSize >= length {
			break
		}
	}
	return origins
}

// Grid returns the tile rectangles for an image of the given size in
// row-major order without copying any pixels.
func Grid(width, height, tileSize, overlap int) ([]image.Rectangle, error) {
	if err := Validate(tileSize, overlap); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}

	xs := Origins(width, tileSize, overlap)
	ys := Origins(height, tileSize, overlap)

	rects := make([]image.Rectangle, 0, len(xs)*len(ys))
	for _, y := range ys {
		th := min(tileSize, height-y)
		for _, x := range xs {
			tw := min(tileSize, width-x)
			rects = append(rects, image.Rect(x, y, x+tw, y+th))
		}
	}
	return rects, nil
}

// Split cuts img into tiles. Edge tiles are cropped, not padded, so tile sizes
// are not uniform. Each tile owns a copy of its pixels.
func Split(img *models.PixelBuffer, tileSize, overlap int) ([]models.Tile, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	rects, err := Grid(img.Width, img.Height, tileSize, overlap)
	if err != nil {
		return nil, err
	}

	tiles := make([]models.Tile, len(rects))
	for i, r := range rects {
		tiles[i] = models.Tile{
			Index:  i,
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
			Pixels: img.Crop(r),
		}
	}
	return tiles, nil
}
