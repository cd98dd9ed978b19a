package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// ErrInference wraps any failure reported by the model runtime.
var ErrInference = errors.New("inference failed")

// Infer runs m on the classifier inputs and returns the validated [1, C]
// logits tensor.
func Infer(ctx context.Context, m Model, in tensor.Inputs) (tensor.Float32, error) {
	if m == nil {
		return tensor.Float32{}, fmt.Errorf("%w: model is nil", ErrInference)
	}

	outputs, err := m.Run(ctx, in.Named())
	if err != nil {
		return tensor.Float32{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	logits, ok := outputs[tensor.Logits]
	if !ok {
		return tensor.Float32{}, fmt.Errorf("%w: model produced no %q output", ErrInference, tensor.Logits)
	}
	if err := checkLogits(logits); err != nil {
		// A malformed output is the model's fault, not the caller's
		return tensor.Float32{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return logits, nil
}

func checkLogits(t tensor.Float32) error {
	if len(t.Shape) != 2 {
		return fmt.Errorf("%w: %s has shape %v, expected [1, C]", tensor.ErrShapeMismatch, t.Name, t.Shape)
	}
	if t.Shape[0] != 1 {
		return fmt.Errorf("%w: %s batch dimension is %d, expected 1", tensor.ErrShapeMismatch, t.Name, t.Shape[0])
	}
	if t.Shape[1] <= 0 {
		return fmt.Errorf("%w: %s has %d classes", tensor.ErrShapeMismatch, t.Name, t.Shape[1])
	}
	if int64(len(t.Data)) != t.Shape[1] {
		return fmt.Errorf("%w: %s holds %d values for shape %v", tensor.ErrShapeMismatch, t.Name, len(t.Data), t.Shape)
	}
	return nil
}
