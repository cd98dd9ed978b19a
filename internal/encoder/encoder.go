// Package encoder turns raw text into the token id sequence and attention
// mask a sequence classifier expects.
//
// The tokenizer itself is an external capability (see Tokenizer). The encoder
// only frames the text with boundary markers, delegates, and derives the mask.
package encoder

import (
	"errors"
	"fmt"
)

// Default boundary markers for BERT-family classifiers.
const (
	DefaultPrefix = "[CLS]"
	DefaultSuffix = "[SEP]"
)

// ErrEncoding is returned when the tokenizer fails or yields no tokens.
var ErrEncoding = errors.New("encoding failed")

// Tokenizer is the capability the encoder delegates to.
// Implementations must not add their own special tokens.
type Tokenizer interface {
	Encode(text string) ([]int, error)
}

// TokenizerFunc adapts a plain function to Tokenizer.
type TokenizerFunc func(text string) ([]int, error)

// Encode calls f(text).
func (f TokenizerFunc) Encode(text string) ([]int, error) {
	return f(text)
}

// Encoder frames text and delegates to a Tokenizer. It holds no mutable state
// and is safe for concurrent use if the tokenizer is.
type Encoder struct {
	tok    Tokenizer
	prefix string
	suffix string
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithMarkers overrides the boundary markers.
func WithMarkers(prefix, suffix string) Option {
	return func(e *Encoder) {
		e.prefix = prefix
		e.suffix = suffix
	}
}

// New returns an Encoder using tok.
func New(tok Tokenizer, opts ...Option) *Encoder {
	e := &Encoder{
		tok:    tok,
		prefix: DefaultPrefix,
		suffix: DefaultSuffix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Markers returns the prefix and suffix markers.
func (e *Encoder) Markers() (string, string) {
	return e.prefix, e.suffix
}

// Frame wraps text with the boundary markers.
func (e *Encoder) Frame(text string) string {
	framed := text
	if e.prefix != "" {
		framed = e.prefix + " " + framed
	}
	if e.suffix != "" {
		framed = framed + " " + e.suffix
	}
	return framed
}

// Encode frames text and returns its token ids.
func (e *Encoder) Encode(text string) ([]int64, error) {
	if e.tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", ErrEncoding)
	}

	raw, err := e.tok.Encode(e.Frame(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: tokenizer returned no tokens", ErrEncoding)
	}

	ids := make([]int64, len(raw))
	for i, id := range raw {
		if id < 0 {
			return nil, fmt.Errorf("%w: negative token id %d at position %d", ErrEncoding, id, i)
		}
		ids[i] = int64(id)
	}
	return ids, nil
}

// BuildMask returns an all-ones attention mask the length of ids.
func BuildMask(ids []int64) []int64 {
	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return mask
}

// SequencePolicy fixes the sequence length for models exported with a static
// input shape. The zero value disables it and sequences pass through unchanged.
type SequencePolicy struct {
	// MaxLen is the fixed sequence length. 0 disables truncation and padding.
	MaxLen int
	// PadID fills positions past the end of the text. Their mask value is 0.
	PadID int64
}

// Enabled reports whether the policy changes sequences.
func (p SequencePolicy) Enabled() bool {
	return p.MaxLen > 0
}

// Apply truncates to MaxLen and then pads to MaxLen. Truncation drops
// tokens before the final id so the suffix marker survives.
// The inputs are not modified.
func (p SequencePolicy) Apply(ids, mask []int64) ([]int64, []int64) {
	if !p.Enabled() {
		return ids, mask
	}

	outIDs := make([]int64, p.MaxLen)
	outMask := make([]int64, p.MaxLen)
	if len(ids) > p.MaxLen {
		last := len(ids) - 1
		copy(outIDs, ids[:p.MaxLen-1])
		outIDs[p.MaxLen-1] = ids[last]
		copy(outMask, mask[:min(len(mask), p.MaxLen-1)])
		if last < len(mask) {
			outMask[p.MaxLen-1] = mask[last]
		}
		return outIDs, outMask
	}

	n := copy(outIDs, ids)
	copy(outMask, mask[:min(len(mask), n)])
	for i := n; i < p.MaxLen; i++ {
		outIDs[i] = p.PadID
	}
	return outIDs, outMask
}
