// internal/inference/mock.go
package inference

import (
	"context"
	"fmt"
	"sync"

	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// Mock is a mock implementation of Model for testing.
// It returns fixed logits without requiring the ONNX shared library.
type Mock struct {
	mu sync.Mutex

	// Logits are returned as a [1, len(Logits)] tensor on every call
	Logits []float32
	// Shape overrides the returned logits shape when set
	Shape []int64
	// OutputName is the name of the returned tensor, "logits" when empty
	OutputName string
	// ShouldError if true, Run will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Run was called
	CallCount int
	// LastInputs holds the inputs of the most recent call
	LastInputs []tensor.Int64
}

// NewMock creates a new Mock that favours class 1 of five
func NewMock() *Mock {
	return NewMockWithLogits([]float32{0.1, 0.9, 0.05, 0.0, 0.2})
}

// NewMockWithLogits creates a Mock with custom logits
func NewMockWithLogits(logits []float32) *Mock {
	return &Mock{Logits: logits}
}

// Run validates the inputs the way the real graph would and returns the
// configured logits.
func (m *Mock) Run(ctx context.Context, inputs []tensor.Int64) (map[string]tensor.Float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastInputs = inputs

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	var seqLen int64 = -1
	for _, want := range []string{tensor.InputIDs, tensor.AttentionMask} {
		in, ok := findInput(inputs, want)
		if !ok {
			return nil, fmt.Errorf("missing input %q", want)
		}
		if len(in.Shape) != 2 || in.Shape[0] != 1 || in.Shape[1] != int64(len(in.Data)) {
			return nil, fmt.Errorf("input %s has wrong size: shape %v with %d values", in.Name, in.Shape, len(in.Data))
		}
		if seqLen >= 0 && in.Shape[1] != seqLen {
			return nil, fmt.Errorf("input %s has wrong size: got %d, expected %d", in.Name, in.Shape[1], seqLen)
		}
		seqLen = in.Shape[1]
	}

	name := m.OutputName
	if name == "" {
		name = tensor.Logits
	}
	shape := m.Shape
	if shape == nil {
		shape = []int64{1, int64(len(m.Logits))}
	}
	data := make([]float32, len(m.Logits))
	copy(data, m.Logits)

	return map[string]tensor.Float32{
		name: {Name: name, Shape: shape, Data: data},
	}, nil
}

func findInput(inputs []tensor.Int64, name string) (tensor.Int64, bool) {
	for _, in := range inputs {
		if in.Name == name {
			return in, true
		}
	}
	return tensor.Int64{}, false
}

// Close is a no-op for the mock implementation
func (m *Mock) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next Run call
func (m *Mock) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *Mock) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Calls returns CallCount under the lock.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Ensure Mock implements Model at compile time
var _ Model = (*Mock)(nil)
