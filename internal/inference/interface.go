// internal/inference/interface.go
package inference

import (
	"context"

	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// Model is the model execution capability: named int64 inputs in, named
// float32 outputs out. It abstracts the runtime so the pipeline can be
// tested without the ONNX shared library.
type Model interface {
	// Run executes one forward pass. Returned tensors are owned by the caller.
	Run(ctx context.Context, inputs []tensor.Int64) (map[string]tensor.Float32, error)

	// Close releases any resources held by the model.
	Close() error
}
