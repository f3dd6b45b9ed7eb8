package codec

import (
	"math"
	"testing"

	"offline-enhancer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patterned(w, h int) *models.PixelBuffer {
	img := models.NewPixelBuffer(w, h)
	for i := range img.Pix {
		img.Pix[i] = uint8((i * 37) % 256)
	}
	return img
}

func TestEncodeLayout(t *testing.T) {
	img := models.NewPixelBuffer(2, 1)
	img.Set(0, 0, 10, 20, 30) // B G R
	img.Set(1, 0, 40, 50, 60)

	sample := EncodeBuffer(img)
	require.Equal(t, models.NewDims(1, 2), sample.Dims)
	require.Len(t, sample.Data, 6)

	want := []float32{30, 60, 20, 50, 10, 40}
	for i, v := range want {
		assert.InDelta(t, v/255, sample.Data[i], 1e-6, "index %d", i)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, size := range [][2]int{{3, 5}, {64, 64}, {300, 260}} {
		img := patterned(size[0], size[1])

		sample := Encode(models.Tile{Width: img.Width, Height: img.Height, Pixels: img})
		assert.Len(t, sample.Data, 3*img.Width*img.Height)

		got, err := Decode(sample.Data, models.Channels, img.Height, img.Width)
		require.NoError(t, err)
		for i := range img.Pix {
			diff := int(got.Pix[i]) - int(img.Pix[i])
			if diff < -1 || diff > 1 {
				t.Fatalf("%dx%d byte %d: got %d want %d", img.Width, img.Height, i, got.Pix[i], img.Pix[i])
			}
		}
	}
}

func TestDecodeClips(t *testing.T) {
	nan := float32(math.NaN())
	data := []float32{
		-0.5, 1.5, nan, // R
		0.5, 0, 1, // G
		2, -1, 0.25, // B
	}

	got, err := Decode(data, 3, 1, 3)
	require.NoError(t, err)

	// BGR per pixel
	assert.Equal(t, []uint8{255, 128, 0, 0, 0, 255, 64, 255, 0}, got.Pix)
}

func TestDecodeLengthMismatch(t *testing.T) {
	_, err := Decode(make([]float32, 11), 3, 2, 2)
	assert.ErrorIs(t, err, ErrSampleLength)
	assert.Contains(t, err.Error(), "got 11 values, want 12")
}

func TestDecodeChannels(t *testing.T) {
	_, err := Decode(make([]float32, 4), 1, 2, 2)
	assert.ErrorIs(t, err, ErrChannels)
}

func TestDecodeResult(t *testing.T) {
	res := models.InferenceResult{Dims: models.NewDims(1, 1), Data: []float32{1, 0, 0}}
	got, err := DecodeResult(res)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 255}, got.Pix)
}

func TestClip(t *testing.T) {
	assert.Equal(t, float32(0), Clip(float32(math.NaN())))
	assert.Equal(t, float32(0), Clip(-3))
	assert.Equal(t, float32(1), Clip(7))
	assert.Equal(t, float32(0.5), Clip(0.5))
}
