// Package inference - Runs the occupancy model on prepared input tensors.
package inference

import (
	"context"

	"gorgonia.org/tensor"
)

// Invoker runs the detection model on a prepared [1, 3, 640, 640] input tensor and returns the
// flat output tensor. Implementations must be safe for concurrent use.
type Invoker interface {
	Run(ctx context.Context, input *tensor.Dense) ([]float32, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, input *tensor.Dense) ([]float32, error)

// Run calls f(ctx, input).
func (f InvokerFunc) Run(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	return f(ctx, input)
}

// float32Data returns the float32 backing of t.
func float32Data(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, ErrNilInput
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, ErrInputType
	}
	return data, nil
}
