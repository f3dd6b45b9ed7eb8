package chain

import (
	"context"
	"fmt"

	"offline-enhancer/internal/models"
)

// ProcessingStep is one whole-image filter run on the finished canvas
type ProcessingStep interface {
	Apply(ctx context.Context, input *models.PixelBuffer, params map[string]interface{}) (*models.PixelBuffer, error)
	Name() string
	ShouldExecute(params map[string]interface{}) bool
}

type ProcessingChain struct {
	steps []ProcessingStep
}

func NewProcessingChain(steps ...ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps: steps,
	}
}

// Execute runs every enabled step in order. The input is never modified; when
// no step runs the input itself is returned.
func (pc *ProcessingChain) Execute(ctx context.Context, input *models.PixelBuffer, params map[string]interface{}) (*models.PixelBuffer, error) {
	current := input

	for _, step := range pc.steps {
		if !step.ShouldExecute(params) {
			continue
		}

		result, err := step.Apply(ctx, current, params)
		if err != nil {
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		current = result
	}

	return current, nil
}

// Names lists the configured steps in execution order
func (pc *ProcessingChain) Names() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}

// Enabled lists the steps that would run for params, in execution order
func (pc *ProcessingChain) Enabled(params map[string]interface{}) []string {
	var names []string
	for _, step := range pc.steps {
		if step.ShouldExecute(params) {
			names = append(names, step.Name())
		}
	}
	return names
}
