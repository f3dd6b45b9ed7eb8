package conversion

import (
	"fmt"
	"image"

	"offline-enhancer/internal/models"
	"offline-enhancer/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// BufferToMat copies a pixel buffer into a new CV_8UC3 Mat
func BufferToMat(pix *models.PixelBuffer, tag string) (*safe.Mat, error) {
	if pix.Empty() {
		return nil, fmt.Errorf("pixel buffer is empty")
	}
	if err := safe.ValidateDimensions(pix.Width, pix.Height, "buffer to Mat"); err != nil {
		return nil, err
	}

	view, err := gocv.NewMatFromBytes(pix.Height, pix.Width, gocv.MatTypeCV8UC3, pix.Pix)
	if err != nil {
		return nil, fmt.Errorf("Mat creation failed: %w", err)
	}
	// The view may reference Go memory; detach it before handing it out.
	owned := view.Clone()
	view.Close()

	return safe.Adopt(owned, tag)
}

// MatToBuffer copies a Mat into a BGR pixel buffer. Gray and BGRA inputs are
// converted to BGR first.
func MatToBuffer(src *safe.Mat) (*models.PixelBuffer, error) {
	if err := safe.Check(src, "Mat to buffer conversion"); err != nil {
		return nil, err
	}

	srcMat := src.GetMat()
	bgr := gocv.NewMat()
	defer bgr.Close()

	switch src.Channels() {
	case 1:
		gocv.CvtColor(srcMat, &bgr, gocv.ColorGrayToBGR)
	case 3:
		srcMat.CopyTo(&bgr)
	case 4:
		gocv.CvtColor(srcMat, &bgr, gocv.ColorBGRAToBGR)
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	if bgr.Type() != gocv.MatTypeCV8UC3 {
		converted := gocv.NewMat()
		defer converted.Close()
		bgr.ConvertTo(&converted, gocv.MatTypeCV8UC3)
		converted.CopyTo(&bgr)
	}

	return models.NewPixelBufferFromBytes(bgr.Cols(), bgr.Rows(), bgr.ToBytes())
}

// BufferToImage copies a BGR buffer into an opaque NRGBA image
func BufferToImage(pix *models.PixelBuffer) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, pix.Width, pix.Height))
	for y := 0; y < pix.Height; y++ {
		for x := 0; x < pix.Width; x++ {
			b, g, r := pix.At(x, y)
			i := out.PixOffset(x, y)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, b, 255
		}
	}
	return out
}

// ImageToBuffer converts any Go image to a BGR buffer, dropping alpha
func ImageToBuffer(img image.Image) *models.PixelBuffer {
	bounds := img.Bounds()
	out := models.NewPixelBuffer(bounds.Dx(), bounds.Dy())

	if rgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				i := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				out.Set(x, y, rgba.Pix[i+2], rgba.Pix[i+1], rgba.Pix[i])
			}
		}
		return out
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y, uint8(b>>8), uint8(g>>8), uint8(r>>8))
		}
	}
	return out
}
