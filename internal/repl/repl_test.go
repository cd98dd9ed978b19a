package repl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/intent-service/internal/encoder"
	"github.com/SyedDaiam9101/intent-service/internal/inference"
	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
)

func wordCounter() encoder.Tokenizer {
	return encoder.TokenizerFunc(func(text string) ([]int, error) {
		n := len(strings.Fields(text))
		ids := make([]int, n)
		for i := range ids {
			ids[i] = i + 1
		}
		return ids, nil
	})
}

func classifier(logits ...float32) *pipeline.Classifier {
	return pipeline.New(encoder.New(wordCounter()), inference.NewMockWithLogits(logits), nil)
}

func TestRun_PrintsDiagnostics(t *testing.T) {
	var out strings.Builder
	r := New(classifier(0, 0, 0, 0, 1), strings.NewReader("turn up the volume\n\n"), &out)

	require.NoError(t, r.Run(context.Background()))

	got := out.String()
	assert.Contains(t, got, "Input IDs: 1 2 3 4 5 6\n")
	assert.Contains(t, got, "Attention Mask: 1 1 1 1 1 1\n")
	assert.Contains(t, got, "Logits: 0 0 0 0 1\n")
	assert.Contains(t, got, "Predicted ID: 4\n")
	assert.Contains(t, got, "Predicted Label: unmute_media\n")
	assert.Equal(t, 2, strings.Count(got, DefaultPrompt))
	assert.NotContains(t, got, "Probabilities")
}

func TestRun_EOFWithoutNewline(t *testing.T) {
	var out strings.Builder
	r := New(classifier(0.1, 0.9, 0.05, 0, 0.2), strings.NewReader("raise the window"), &out)

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Predicted Label: raise_window\n")
}

func TestRun_EmptyInputExits(t *testing.T) {
	var out strings.Builder
	r := New(classifier(1), strings.NewReader(""), &out)

	require.NoError(t, r.Run(context.Background()))
	assert.NotContains(t, out.String(), "Predicted")
}

func TestRun_WhitespaceLineIsClassified(t *testing.T) {
	mock := inference.NewMock()
	var out strings.Builder
	r := New(pipeline.New(encoder.New(wordCounter()), mock, nil), strings.NewReader("  \n\n"), &out)

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Input IDs: 1 2\n")
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, 2, strings.Count(out.String(), DefaultPrompt))
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	var out strings.Builder
	// Six classes: the arg-max falls outside the default label table
	r := New(classifier(0, 0, 0, 0, 0, 9), strings.NewReader("mute\nunmute\n\n"), &out)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 2, strings.Count(out.String(), "Error: decode: unknown class"))
	assert.Equal(t, 3, strings.Count(out.String(), DefaultPrompt))
}

func TestRun_TokenizeOnly(t *testing.T) {
	mock := inference.NewMock()
	var out strings.Builder
	clf := pipeline.New(encoder.New(wordCounter()), mock, nil)
	r := New(clf, strings.NewReader("lower the window\n"), &out, WithTokenizeOnly(true), WithPrompt("> "))

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Input IDs: 1 2 3 4 5\n")
	assert.NotContains(t, out.String(), "Logits")
	assert.Equal(t, 0, mock.Calls())
}

func TestRun_Verbose(t *testing.T) {
	var out strings.Builder
	r := New(classifier(0, 0), strings.NewReader("mute\n"), &out, WithVerbose(true))

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Probabilities: 0.5000 0.5000\n")
	assert.Contains(t, out.String(), "Predicted ID: 0\n")
	assert.Contains(t, out.String(), "cached=false")
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	r := New(classifier(1), strings.NewReader("mute\n"), &out)
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, out.String())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stdin closed") }

func TestRun_ReadFailure(t *testing.T) {
	var out strings.Builder
	r := New(classifier(1), failingReader{}, &out)
	assert.Error(t, r.Run(context.Background()))
}
