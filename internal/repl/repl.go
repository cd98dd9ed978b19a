// Package repl implements the line-oriented interactive loop of intentctl.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
)

// DefaultPrompt is printed before every line is read.
const DefaultPrompt = "Enter a sentence (empty to quit): "

// Classifier is the part of pipeline.Classifier the loop uses.
type Classifier interface {
	Classify(ctx context.Context, text string) (*pipeline.Result, error)
	Tokenize(text string) ([]int64, []int64, error)
}

// REPL represents the interactive command-line interface
type REPL struct {
	clf          Classifier
	in           *bufio.Reader
	out          io.Writer
	prompt       string
	verbose      bool
	tokenizeOnly bool
}

// Option configures a REPL.
type Option func(*REPL)

// WithVerbose also prints softmax probabilities and timing.
func WithVerbose(v bool) Option {
	return func(r *REPL) { r.verbose = v }
}

// WithTokenizeOnly stops after encoding and prints only ids and mask.
func WithTokenizeOnly(v bool) Option {
	return func(r *REPL) { r.tokenizeOnly = v }
}

// WithPrompt replaces DefaultPrompt.
func WithPrompt(p string) Option {
	return func(r *REPL) { r.prompt = p }
}

// New creates a REPL reading from in and writing to out.
func New(clf Classifier, in io.Reader, out io.Writer, opts ...Option) *REPL {
	r := &REPL{
		clf:    clf,
		in:     bufio.NewReader(in),
		out:    out,
		prompt: DefaultPrompt,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until an empty line, EOF or ctx is done. Request errors
// are printed and the loop continues; only read failures are returned.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(r.out, r.prompt)
		line, err := r.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		eof := err != nil

		text := strings.TrimRight(line, "\r\n")
		if text == "" {
			if eof {
				fmt.Fprintln(r.out)
			}
			return nil
		}

		r.handle(ctx, text)
		if eof {
			return nil
		}
	}
}

func (r *REPL) handle(ctx context.Context, text string) {
	if r.tokenizeOnly {
		ids, mask, err := r.clf.Tokenize(text)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return
		}
		PrintTokens(r.out, ids, mask)
		return
	}

	res, err := r.clf.Classify(ctx, text)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	PrintResult(r.out, res, r.verbose)
}

// PrintTokens writes the ids and mask lines.
func PrintTokens(w io.Writer, ids, mask []int64) {
	fmt.Fprintf(w, "Input IDs: %s\n", joinInts(ids))
	fmt.Fprintf(w, "Attention Mask: %s\n", joinInts(mask))
}

// PrintResult writes the diagnostic block for one classified input.
func PrintResult(w io.Writer, res *pipeline.Result, verbose bool) {
	PrintTokens(w, res.TokenIDs, res.AttentionMask)
	fmt.Fprintf(w, "Logits: %s\n", joinFloats32(res.Logits))
	if verbose {
		fmt.Fprintf(w, "Probabilities: %s\n", joinFloats64(res.Probabilities))
	}
	fmt.Fprintf(w, "Predicted ID: %d\n", res.ClassIndex)
	fmt.Fprintf(w, "Predicted Label: %s\n", res.Label)
	if verbose {
		fmt.Fprintf(w, "Elapsed: %s (cached=%t)\n", res.Elapsed, res.Cached)
	}
}

func joinInts(v []int64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatInt(x, 10)
	}
	return strings.Join(parts, " ")
}

func joinFloats32(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'g', 6, 32)
	}
	return strings.Join(parts, " ")
}

func joinFloats64(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 4, 64)
	}
	return strings.Join(parts, " ")
}
