// internal/inference/inference.go
package inference

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// ONNX wraps an ONNX runtime session for thread-safe inference.
// It implements the Model interface.
type ONNX struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
	ownsEnv     bool
}

type onnxOptions struct {
	libraryPath    string
	intraOpThreads int
}

// Option configures the ONNX runtime.
type Option func(*onnxOptions)

// WithSharedLibrary points the runtime at a specific onnxruntime shared library.
func WithSharedLibrary(path string) Option {
	return func(o *onnxOptions) {
		o.libraryPath = path
	}
}

// WithIntraOpThreads limits the threads used inside one operator. 0 keeps the runtime default.
func WithIntraOpThreads(n int) Option {
	return func(o *onnxOptions) {
		o.intraOpThreads = n
	}
}

// New creates a new ONNX model by loading the sequence classifier from modelPath
func New(modelPath string, opts ...Option) (*ONNX, error) {
	var o onnxOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.libraryPath != "" {
		ort.SetSharedLibraryPath(o.libraryPath)
	}

	// Initialize the ONNX runtime environment
	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnv = true
	}

	session, err := newSession(modelPath, o.intraOpThreads)
	if err != nil {
		if ownsEnv {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}

	return &ONNX{
		session:     session,
		inputNames:  []string{tensor.InputIDs, tensor.AttentionMask},
		outputNames: []string{tensor.Logits},
		ownsEnv:     ownsEnv,
	}, nil
}

func newSession(modelPath string, intraOpThreads int) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	if intraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(intraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	// Dynamic session: the sequence length changes with every request
	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{tensor.InputIDs, tensor.AttentionMask},
		[]string{tensor.Logits},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Run executes the classifier graph. Inputs are matched to the session's
// input names; outputs are copied out of runtime memory before returning.
func (m *ONNX) Run(ctx context.Context, inputs []tensor.Int64) (map[string]tensor.Float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}

	byName := make(map[string]tensor.Int64, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	values := make([]ort.Value, len(m.inputNames))
	for i, name := range m.inputNames {
		in, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", name)
		}
		t, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor %s: %w", name, err)
		}
		defer t.Destroy()
		values[i] = t
	}

	// nil outputs are allocated by the runtime with the shape it computes
	outputs := make([]ort.Value, len(m.outputNames))
	if err := m.session.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make(map[string]tensor.Float32, len(outputs))
	for i, name := range m.outputNames {
		t, ok := outputs[i].(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is %T, expected float32 tensor", name, outputs[i])
		}
		data := make([]float32, len(t.GetData()))
		copy(data, t.GetData())
		shape := t.GetShape()
		result[name] = tensor.Float32{
			Name:  name,
			Shape: append([]int64(nil), shape...),
			Data:  data,
		}
	}

	return result, nil
}

// Close releases the ONNX session resources
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	if m.ownsEnv {
		m.ownsEnv = false
		return ort.DestroyEnvironment()
	}
	return nil
}

// Ensure ONNX implements Model at compile time
var _ Model = (*ONNX)(nil)
