package inference

import (
	"context"

	"offline-enhancer/internal/models"
)

// NearestBackend replicates every input value into a scale x scale block. It
// is deterministic and needs no model, which makes it the reference backend
// for tests.
type NearestBackend struct {
	scale int
}

func NewNearestBackend(scale int) *NearestBackend {
	return &NearestBackend{scale: max(1, scale)}
}

func (n *NearestBackend) Name() string { return "nearest" }

func (n *NearestBackend) Scale() int { return n.scale }

func (n *NearestBackend) Close() error { return nil }

func (n *NearestBackend) Run(ctx context.Context, sample models.NumericSample) ([]float32, error) {
	if err := checkSample(sample); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := n.scale
	h, w := sample.Dims.Height, sample.Dims.Width
	oh, ow := h*s, w*s
	out := make([]float32, sample.Dims.Channels*oh*ow)

	for c := 0; c < sample.Dims.Channels; c++ {
		in := sample.Data[c*h*w : (c+1)*h*w]
		plane := out[c*oh*ow : (c+1)*oh*ow]
		for oy := 0; oy < oh; oy++ {
			srcRow := in[(oy/s)*w : (oy/s+1)*w]
			dstRow := plane[oy*ow : (oy+1)*ow]
			for ox := range dstRow {
				dstRow[ox] = srcRow[ox/s]
			}
		}
	}
	return out, nil
}
