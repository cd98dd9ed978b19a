package labels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// Decision is the decoded prediction for one input.
type Decision struct {
	ClassIndex int
	Label      string
	// Logits is an unmodified copy of the model output row.
	Logits []float32
}

// Decode picks the arg-max class of a [1, C] logits tensor.
// Ties go to the lowest index.
func Decode(logits tensor.Float32, m *Map) (Decision, error) {
	row := logits.Data
	if len(logits.Shape) == 2 {
		r, err := logits.Row(0)
		if err != nil {
			return Decision{}, err
		}
		row = r
	} else {
		row = append([]float32(nil), row...)
	}
	if len(row) == 0 {
		return Decision{}, fmt.Errorf("%w: empty logits", tensor.ErrShapeMismatch)
	}

	idx := floats.MaxIdx(widen(row))
	label, ok := m.Label(idx)
	if !ok {
		return Decision{}, fmt.Errorf("%w: index %d not in label map (%d labels)", ErrUnknownClass, idx, m.Len())
	}

	return Decision{ClassIndex: idx, Label: label, Logits: row}, nil
}

// Softmax converts logits to probabilities. It is for display only and
// plays no part in Decode.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	x := widen(logits)
	lse := floats.LogSumExp(x)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Exp(v - lse)
	}
	return out
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
