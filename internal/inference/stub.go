package inference

import (
	"context"

	"offline-enhancer/internal/models"
)

// StubGrey is the value every element of a stub result carries
const StubGrey = 0.5

// StubBackend returns a flat grey image of the right size. It proves the
// pipeline end to end without a model file.
type StubBackend struct {
	scale int
}

func NewStubBackend(scale int) *StubBackend {
	return &StubBackend{scale: max(1, scale)}
}

func (s *StubBackend) Name() string { return "stub" }

func (s *StubBackend) Scale() int { return s.scale }

func (s *StubBackend) Close() error { return nil }

func (s *StubBackend) Run(_ context.Context, sample models.NumericSample) ([]float32, error) {
	if err := checkSample(sample); err != nil {
		return nil, err
	}
	out := make([]float32, len(sample.Data)*s.scale*s.scale)
	for i := range out {
		out[i] = StubGrey
	}
	return out, nil
}
