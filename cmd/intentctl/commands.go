package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/SyedDaiam9101/intent-service/internal/config"
	"github.com/SyedDaiam9101/intent-service/internal/handler"
	"github.com/SyedDaiam9101/intent-service/internal/history"
	"github.com/SyedDaiam9101/intent-service/internal/npy"
	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
	"github.com/SyedDaiam9101/intent-service/internal/repl"
)

// demoCommands are the cockpit commands classified by -examples.
var demoCommands = []string{
	"lower the temperature to 20",
	"roll down the left window",
	"turn on the radio",
	"increase fan speed",
}

const (
	idsFile  = "input_ids.npy"
	maskFile = "attention_mask.npy"
)

func interactive(ctx context.Context, clf *pipeline.Classifier, in io.Reader, out io.Writer, o *options) error {
	r := repl.New(clf, in, out,
		repl.WithVerbose(o.verbose),
		repl.WithTokenizeOnly(o.tokenizeOnly),
	)
	return r.Run(ctx)
}

func runExamples(ctx context.Context, clf *pipeline.Classifier, out io.Writer) error {
	for _, text := range demoCommands {
		res, err := clf.Classify(ctx, text)
		if err != nil {
			return fmt.Errorf("classify %q: %w", text, err)
		}
		fmt.Fprintf(out, "Command: '%s' → Predicted intent: '%s'\n", text, res.Label)
	}
	return nil
}

// classifyArrays runs the model on ids and mask read from .npy files. Both
// files hold one sequence, shaped (N,) or (1, N).
func classifyArrays(ctx context.Context, clf *pipeline.Classifier, idsPath, maskPath string, verbose bool, out io.Writer) error {
	ids, err := readSequence(idsPath)
	if err != nil {
		return err
	}
	mask, err := readSequence(maskPath)
	if err != nil {
		return err
	}

	res, err := clf.ClassifyIDs(ctx, ids, mask)
	if err != nil {
		return err
	}
	repl.PrintResult(out, res, verbose)
	return nil
}

func readSequence(path string) ([]int64, error) {
	a, err := npy.ReadArray(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(a.Shape) == 1:
	case len(a.Shape) == 2 && a.Shape[0] == 1:
	default:
		return nil, fmt.Errorf("%s: expected a single sequence, got shape %s", path, npy.FormatShape(a.Shape))
	}
	return a.Data, nil
}

// pretokenize writes the fixed-length ids and mask of text as .npy files.
func pretokenize(clf *pipeline.Classifier, text, dir string, out io.Writer) error {
	if text == "" {
		return fmt.Errorf("-pretokenize needs -text")
	}
	ids, mask, err := clf.Tokenize(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	shape := []int64{1, int64(len(ids))}
	if err := npy.WriteFile(filepath.Join(dir, idsFile), ids, shape); err != nil {
		return err
	}
	if err := npy.WriteFile(filepath.Join(dir, maskFile), mask, shape); err != nil {
		return err
	}

	repl.PrintTokens(out, ids, mask)
	fmt.Fprintf(out, "Wrote %s and %s to %s\n", idsFile, maskFile, dir)
	return nil
}

func showHistory(ctx context.Context, cfg *config.Config, n int, out io.Writer) error {
	if cfg.History == "" {
		return fmt.Errorf("no history journal configured (use -history or the history key)")
	}
	j, err := history.Open(cfg.History)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-16s %d  %q (%s)\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Label, e.ClassIndex, e.Text, e.Elapsed.Round(time.Microsecond))
	}

	counts, err := j.CountByLabel(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	fmt.Fprintf(out, "%d predictions recorded across %d labels\n", total, len(counts))
	return nil
}

func classifyRemote(ctx context.Context, o *options, out io.Writer) error {
	if o.text == "" {
		return fmt.Errorf("-remote needs -text")
	}
	conn, err := grpc.NewClient(o.remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", o.remote, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := handler.NewClient(conn).Classify(ctx, o.text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Predicted ID: %d\nPredicted Label: %s\n", resp.ClassIndex, resp.Label)
	if o.verbose {
		fmt.Fprintf(out, "Token IDs: %v\nLogits: %v\nCached: %t\n", resp.TokenIDs, resp.Logits, resp.Cached)
	}
	return nil
}
