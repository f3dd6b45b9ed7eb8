package filters

import (
	"context"
	"testing"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/processing/chain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepEdge(w, h int) *models.PixelBuffer {
	img := models.NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(60)
			if x >= w/2 {
				v = 180
			}
			img.Set(x, y, v, v, v)
		}
	}
	return img
}

func TestSharpenZeroIsIdentity(t *testing.T) {
	src := stepEdge(20, 10)

	for _, strength := range []float64{0, -1} {
		got, err := Sharpen(src, strength)
		require.NoError(t, err)
		assert.Equal(t, src.Pix, got.Pix)

		// a copy, not the same buffer
		got.Pix[0] = 1
		assert.Equal(t, uint8(60), src.Pix[0])
	}
}

func TestSharpenIncreasesEdgeContrast(t *testing.T) {
	src := stepEdge(40, 8)

	got, err := Sharpen(src, 1.0)
	require.NoError(t, err)
	require.Equal(t, src.Width, got.Width)
	require.Equal(t, src.Height, got.Height)

	dark, _, _ := got.At(19, 4)
	bright, _, _ := got.At(20, 4)
	assert.Less(t, dark, uint8(60))
	assert.Greater(t, bright, uint8(180))

	// flat regions far from the edge stay put
	far, _, _ := got.At(0, 4)
	assert.InDelta(t, 60, int(far), 1)
}

func TestSharpenFlatImageUnchanged(t *testing.T) {
	src := models.NewPixelBuffer(16, 16)
	src.Fill(255, 0, 128)

	got, err := Sharpen(src, 0.5)
	require.NoError(t, err)
	for i := range src.Pix {
		assert.InDelta(t, int(src.Pix[i]), int(got.Pix[i]), 1)
	}
}

func TestUnsharpMaskInChain(t *testing.T) {
	c := chain.NewProcessingChain(NewUnsharpMask())
	assert.Equal(t, []string{"unsharp_mask"}, c.Names())

	src := stepEdge(12, 6)

	out, err := c.Execute(context.Background(), src, map[string]interface{}{"sharpen_strength": 0.0})
	require.NoError(t, err)
	assert.Same(t, src, out)

	out, err = c.Execute(context.Background(), src, map[string]interface{}{"sharpen_strength": 0.7})
	require.NoError(t, err)
	assert.NotSame(t, src, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Execute(ctx, src, map[string]interface{}{"sharpen_strength": 0.7})
	assert.ErrorIs(t, err, context.Canceled)
}
