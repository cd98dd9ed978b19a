package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/SyedDaiam9101/intent-service/internal/cache"
	"github.com/SyedDaiam9101/intent-service/internal/encoder"
	"github.com/SyedDaiam9101/intent-service/internal/history"
	"github.com/SyedDaiam9101/intent-service/internal/inference"
	"github.com/SyedDaiam9101/intent-service/internal/labels"
	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// fixedTokenizer returns one id per whitespace-separated word.
func fixedTokenizer() encoder.Tokenizer {
	return encoder.TokenizerFunc(func(text string) ([]int, error) {
		words := strings.Fields(text)
		ids := make([]int, len(words))
		for i := range words {
			ids[i] = 100 + i
		}
		return ids, nil
	})
}

func wordPiece(t *testing.T) *encoder.Encoder {
	t.Helper()
	tok, err := encoder.LoadWordPiece(filepath.Join("..", "encoder", "testdata", "vocab.txt"))
	require.NoError(t, err)
	return encoder.New(tok)
}

func TestClassify_StubLogits(t *testing.T) {
	mock := inference.NewMock()
	c := New(encoder.New(fixedTokenizer()), mock, nil)

	res, err := c.Classify(context.Background(), "raise the window")
	require.NoError(t, err)

	assert.Equal(t, 1, res.ClassIndex)
	assert.Equal(t, "raise_window", res.Label)
	assert.Equal(t, []int64{100, 101, 102, 103, 104}, res.TokenIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, res.AttentionMask)
	assert.Equal(t, []float32{0.1, 0.9, 0.05, 0, 0.2}, res.Logits)
	assert.Len(t, res.Probabilities, 5)
	assert.Equal(t, "raise the window", res.Text)
	assert.False(t, res.Cached)

	require.Len(t, mock.LastInputs, 2)
	assert.Equal(t, tensor.InputIDs, mock.LastInputs[0].Name)
	assert.Equal(t, []int64{1, 5}, mock.LastInputs[0].Shape)
	assert.Equal(t, tensor.AttentionMask, mock.LastInputs[1].Name)
}

func TestClassify_WordPieceEndToEnd(t *testing.T) {
	mock := inference.NewMockWithLogits([]float32{0, 0, 0, 0, 1})
	c := New(wordPiece(t), mock, labels.Default())

	res, err := c.Classify(context.Background(), "turn up the volume")
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 5, 6, 7, 8, 3}, res.TokenIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1}, res.AttentionMask)
	assert.Equal(t, 4, res.ClassIndex)
	assert.Equal(t, "unmute_media", res.Label)
}

func TestClassify_SequencePolicy(t *testing.T) {
	mock := inference.NewMock()
	c := New(wordPiece(t), mock, nil, WithPolicy(encoder.SequencePolicy{MaxLen: 8}))

	res, err := c.Classify(context.Background(), "turn up the volume")
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 5, 6, 7, 8, 3, 0, 0}, res.TokenIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 0, 0}, res.AttentionMask)
	assert.Equal(t, []int64{1, 8}, mock.LastInputs[0].Shape)
}

func TestClassify_TruncationKeepsFraming(t *testing.T) {
	mock := inference.NewMock()
	c := New(wordPiece(t), mock, nil, WithPolicy(encoder.SequencePolicy{MaxLen: 4}))

	res, err := c.Classify(context.Background(), "turn up the volume")
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 5, 6, 3}, res.TokenIDs)
	assert.Equal(t, []int64{1, 1, 1, 1}, res.AttentionMask)
}

func TestTokenize(t *testing.T) {
	c := New(wordPiece(t), nil, nil)

	ids, mask, err := c.Tokenize("lower the left window")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 10, 7, 11, 12, 3}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1}, mask)

	// Whitespace is non-empty and still framed
	ids, mask, err = c.Tokenize("   ")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)
	assert.Equal(t, []int64{1, 1}, mask)

	_, _, err = c.Tokenize("")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestClassify_Errors(t *testing.T) {
	failing := encoder.TokenizerFunc(func(string) ([]int, error) {
		return nil, errors.New("malformed vocabulary")
	})

	tests := []struct {
		name     string
		enc      *encoder.Encoder
		model    func() *inference.Mock
		text     string
		want     error
		prefix   string
		ranModel bool
	}{
		{
			name:   "empty text",
			enc:    encoder.New(fixedTokenizer()),
			model:  inference.NewMock,
			text:   "",
			want:   ErrEmptyInput,
			prefix: StageEncode,
		},
		{
			name:   "tokenizer failure",
			enc:    encoder.New(failing),
			model:  inference.NewMock,
			text:   "turn up the volume",
			want:   encoder.ErrEncoding,
			prefix: StageEncode,
		},
		{
			name: "model failure",
			enc:  encoder.New(fixedTokenizer()),
			model: func() *inference.Mock {
				m := inference.NewMock()
				m.SetError("session crashed")
				return m
			},
			text:     "turn up the volume",
			want:     inference.ErrInference,
			prefix:   StageInfer,
			ranModel: true,
		},
		{
			name: "class outside label map",
			enc:  encoder.New(fixedTokenizer()),
			model: func() *inference.Mock {
				return inference.NewMockWithLogits([]float32{0, 0, 0, 0, 0, 9})
			},
			text:     "turn up the volume",
			want:     labels.ErrUnknownClass,
			prefix:   StageDecode,
			ranModel: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := tt.model()
			c := New(tt.enc, mock, nil)

			res, err := c.Classify(context.Background(), tt.text)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), tt.prefix+": "), err.Error())
			assert.Equal(t, tt.ranModel, mock.Calls() > 0)
		})
	}
}

func TestClassifyIDs(t *testing.T) {
	mock := inference.NewMock()
	c := New(nil, mock, nil)

	res, err := c.ClassifyIDs(context.Background(), []int64{7, 8, 9}, []int64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, "raise_window", res.Label)
	assert.Equal(t, []int64{7, 8, 9}, res.TokenIDs)
	assert.Empty(t, res.Text)
}

func TestClassifyIDs_ShapeMismatch(t *testing.T) {
	mock := inference.NewMock()
	c := New(nil, mock, nil)

	_, err := c.ClassifyIDs(context.Background(), []int64{1, 2, 3, 4, 5}, []int64{1, 1, 1, 1})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Equal(t, 0, mock.Calls(), "model must not run on mismatched inputs")
}

func TestClassify_NilModel(t *testing.T) {
	c := New(encoder.New(fixedTokenizer()), nil, nil)
	assert.False(t, c.Ready())

	_, err := c.Classify(context.Background(), "mute")
	assert.ErrorIs(t, err, inference.ErrInference)
}

func TestClassify_Cache(t *testing.T) {
	mock := inference.NewMock()
	store := cache.NewMemory(time.Minute, 16)
	defer store.Close()

	c := New(encoder.New(fixedTokenizer()), mock, nil, WithCache(store, time.Minute, "test-model"))

	first, err := c.Classify(context.Background(), "raise the window")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Classify(context.Background(), "raise the window")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Label, second.Label)
	assert.Equal(t, first.TokenIDs, second.TokenIDs)
	assert.Equal(t, first.Logits, second.Logits)
	assert.Equal(t, 1, mock.Calls())

	// A different text misses
	_, err = c.Classify(context.Background(), "lower the window")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls())
}

func TestClassify_CacheIgnoresStaleLabels(t *testing.T) {
	store := cache.NewMemory(time.Minute, 16)
	defer store.Close()
	key := cache.Key("m", "mute")
	require.NoError(t, store.Set(context.Background(), key,
		`{"token_ids":[1],"attention_mask":[1],"logits":[1],"class_index":0,"label":"old_label"}`, time.Minute))

	mock := inference.NewMock()
	c := New(encoder.New(fixedTokenizer()), mock, nil, WithCache(store, time.Minute, "m"))

	res, err := c.Classify(context.Background(), "mute")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, mock.Calls())
}

func TestClassify_Journal(t *testing.T) {
	j, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer j.Close()

	c := New(encoder.New(fixedTokenizer()), inference.NewMock(), nil, WithJournal(j))
	_, err = c.Classify(context.Background(), "raise the window")
	require.NoError(t, err)

	// Failed requests are not recorded
	_, err = c.Classify(context.Background(), " ")
	require.Error(t, err)

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "raise the window", entries[0].Text)
	assert.Equal(t, "raise_window", entries[0].Label)
	assert.Equal(t, 1, entries[0].ClassIndex)
}

func TestClassify_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	c := New(encoder.New(fixedTokenizer()), inference.NewMock(), nil, WithTracer(tp.Tracer("test")))
	_, err := c.Classify(context.Background(), "raise the window")
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"pipeline.encode", "pipeline.infer", "pipeline.Classify"}, names)
}
