// Package tensor holds the owned, shape-tagged buffers passed between the
// encoder, the model and the label decoder.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor names shared with the exported classifier graph.
const (
	InputIDs      = "input_ids"
	AttentionMask = "attention_mask"
	Logits        = "logits"
)

// ErrShapeMismatch is returned when tensor dimension invariants are violated.
var ErrShapeMismatch = errors.New("shape mismatch")

// Int64 is a named int64 tensor.
type Int64 struct {
	Name  string
	Shape []int64
	Data  []int64
}

// At returns element i of the flattened buffer.
func (t Int64) At(i int) (int64, error) {
	if i < 0 || i >= len(t.Data) {
		return 0, fmt.Errorf("%w: index %d out of range for %s %v", ErrShapeMismatch, i, t.Name, t.Shape)
	}
	return t.Data[i], nil
}

// Float32 is a named float32 tensor.
type Float32 struct {
	Name  string
	Shape []int64
	Data  []float32
}

// At returns element i of the flattened buffer.
func (t Float32) At(i int) (float32, error) {
	if i < 0 || i >= len(t.Data) {
		return 0, fmt.Errorf("%w: index %d out of range for %s %v", ErrShapeMismatch, i, t.Name, t.Shape)
	}
	return t.Data[i], nil
}

// Row returns a copy of row r of a rank-2 tensor.
func (t Float32) Row(r int) ([]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: %s has rank %d, expected 2", ErrShapeMismatch, t.Name, len(t.Shape))
	}
	rows, cols := int(t.Shape[0]), int(t.Shape[1])
	if r < 0 || r >= rows || len(t.Data) < rows*cols {
		return nil, fmt.Errorf("%w: row %d out of range for %s %v", ErrShapeMismatch, r, t.Name, t.Shape)
	}
	out := make([]float32, cols)
	copy(out, t.Data[r*cols:(r+1)*cols])
	return out, nil
}

// Inputs are the two tensors every classifier call takes.
type Inputs struct {
	InputIDs      Int64
	AttentionMask Int64
}

// Named returns the inputs in the order the model declares them.
func (in Inputs) Named() []Int64 {
	return []Int64{in.InputIDs, in.AttentionMask}
}

// SeqLen returns N of the [1, N] inputs.
func (in Inputs) SeqLen() int {
	return len(in.InputIDs.Data)
}

// BuildInputs packs ids and mask into [1, N] int64 tensors.
// The returned tensors own copies of the data.
func BuildInputs(ids, mask []int64) (Inputs, error) {
	if len(ids) != len(mask) {
		return Inputs{}, fmt.Errorf("%w: %d token ids but %d mask values", ErrShapeMismatch, len(ids), len(mask))
	}
	if len(ids) == 0 {
		return Inputs{}, fmt.Errorf("%w: empty token sequence", ErrShapeMismatch)
	}

	n := int64(len(ids))
	idsData := make([]int64, n)
	copy(idsData, ids)
	maskData := make([]int64, n)
	copy(maskData, mask)

	return Inputs{
		InputIDs:      Int64{Name: InputIDs, Shape: []int64{1, n}, Data: idsData},
		AttentionMask: Int64{Name: AttentionMask, Shape: []int64{1, n}, Data: maskData},
	}, nil
}
