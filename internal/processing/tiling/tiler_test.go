package tiling

import (
	"image"
	"testing"

	"offline-enhancer/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrigins(t *testing.T) {
	tests := []struct {
		name                      string
		length, tileSize, overlap int
		want                      []int
	}{
		{name: "stride 28 reaches edge exactly", length: 100, tileSize: 32, overlap: 4, want: []int{0, 28, 56, 84}},
		{name: "no overlap", length: 64, tileSize: 32, overlap: 0, want: []int{0, 32}},
		{name: "tile larger than axis", length: 20, tileSize: 256, overlap: 16, want: []int{0}},
		{name: "tile equals axis", length: 32, tileSize: 32, overlap: 8, want: []int{0}},
		{name: "short remainder", length: 70, tileSize: 32, overlap: 0, want: []int{0, 32, 64}},
		{name: "empty axis", length: 0, tileSize: 32, overlap: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Origins(tt.length, tt.tileSize, tt.overlap)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Origins mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(32, 0))
	assert.NoError(t, Validate(32, 31))
	assert.ErrorIs(t, Validate(0, 0), ErrInvalidGeometry)
	assert.ErrorIs(t, Validate(32, 32), ErrInvalidGeometry)
	assert.ErrorIs(t, Validate(32, -1), ErrInvalidGeometry)
}

func TestGridLastTileEndsAtEdge(t *testing.T) {
	rects, err := Grid(100, 100, 32, 4)
	require.NoError(t, err)
	require.Len(t, rects, 16)

	last := rects[len(rects)-1]
	assert.Equal(t, image.Rect(84, 84, 100, 100), last)
}

func TestGridRowMajor(t *testing.T) {
	rects, err := Grid(64, 64, 32, 0)
	require.NoError(t, err)

	want := []image.Rectangle{
		image.Rect(0, 0, 32, 32),
		image.Rect(32, 0, 64, 32),
		image.Rect(0, 32, 32, 64),
		image.Rect(32, 32, 64, 64),
	}
	if diff := cmp.Diff(want, rects); diff != "" {
		t.Errorf("Grid mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitCoversEveryPixel(t *testing.T) {
	geometries := []struct{ w, h, tile, overlap int }{
		{100, 100, 32, 4},
		{37, 61, 16, 5},
		{1, 1, 8, 0},
		{300, 7, 64, 63},
		{64, 64, 256, 16},
	}

	for _, g := range geometries {
		img := models.NewPixelBuffer(g.w, g.h)
		for i := range img.Pix {
			img.Pix[i] = uint8(i % 251)
		}

		tiles, err := Split(img, g.tile, g.overlap)
		require.NoError(t, err)

		covered := make([]bool, g.w*g.h)
		for i, tile := range tiles {
			assert.Equal(t, i, tile.Index)
			assert.LessOrEqual(t, tile.X+tile.Width, g.w)
			assert.LessOrEqual(t, tile.Y+tile.Height, g.h)
			assert.LessOrEqual(t, tile.Width, g.tile)
			assert.LessOrEqual(t, tile.Height, g.tile)
			assert.Positive(t, tile.Width)
			assert.Positive(t, tile.Height)
			require.Equal(t, tile.Width, tile.Pixels.Width)
			require.Equal(t, tile.Height, tile.Pixels.Height)

			for y := 0; y < tile.Height; y++ {
				for x := 0; x < tile.Width; x++ {
					covered[(tile.Y+y)*g.w+tile.X+x] = true
					b, gg, r := tile.Pixels.At(x, y)
					sb, sg, sr := img.At(tile.X+x, tile.Y+y)
					if b != sb || gg != sg || r != sr {
						t.Fatalf("%v: pixel (%d,%d) not copied", tile, x, y)
					}
				}
			}
		}

		for i, ok := range covered {
			if !ok {
				t.Fatalf("%dx%d tile %d overlap %d: pixel %d not covered", g.w, g.h, g.tile, g.overlap, i)
			}
		}
	}
}

func TestSplitSingleTileWhenTileExceedsImage(t *testing.T) {
	tiles, err := Split(models.NewPixelBuffer(50, 40), 64, 16)
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	assert.Equal(t, image.Rect(0, 0, 50, 40), tiles[0].Rect())
}

func TestSplitCopiesPixels(t *testing.T) {
	img := models.NewPixelBuffer(4, 4)
	tiles, err := Split(img, 2, 0)
	require.NoError(t, err)

	tiles[0].Pixels.Set(0, 0, 9, 9, 9)
	b, g, r := img.At(0, 0)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{b, g, r})
}

func TestSplitErrors(t *testing.T) {
	_, err := Split(models.NewPixelBuffer(0, 0), 32, 0)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Split(models.NewPixelBuffer(10, 10), 8, 8)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}
