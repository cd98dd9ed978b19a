package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/SyedDaiam9101/intent-service/internal/cache"
	"github.com/SyedDaiam9101/intent-service/internal/config"
)

var testVocab = filepath.Join("..", "encoder", "testdata", "vocab.txt")

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Decode(config.New())
	require.NoError(t, err)
	cfg.UseMockInference = true
	cfg.Tokenizer = testVocab
	return cfg
}

func TestBuild_Mock(t *testing.T) {
	a, err := Build(context.Background(), mockConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Store)
	assert.Nil(t, a.Journal)
	assert.Equal(t, 5, a.Labels.Len())

	res, err := a.Classifier.Classify(context.Background(), "raise the window")
	require.NoError(t, err)
	assert.Equal(t, "raise_window", res.Label)
	assert.Equal(t, int64(2), res.TokenIDs[0])
	assert.Equal(t, int64(3), res.TokenIDs[len(res.TokenIDs)-1])
}

func TestCacheIdentity(t *testing.T) {
	base := mockConfig(t)
	base.UseMockInference = false
	base.Model = filepath.Join("models", "a", "model.onnx")
	id := cacheIdentity(base)

	assert.Equal(t, id, cacheIdentity(base))

	other := *base
	other.Model = filepath.Join("models", "b", "model.onnx")
	assert.NotEqual(t, id, cacheIdentity(&other), "same base name in another directory")

	other = *base
	other.Tokenizer = filepath.Join("models", "b", "vocab.txt")
	assert.NotEqual(t, id, cacheIdentity(&other), "tokenizer")

	other = *base
	other.MaxSeqLen = 16
	assert.NotEqual(t, id, cacheIdentity(&other), "sequence policy")

	other = *base
	other.PadID = 1
	assert.NotEqual(t, id, cacheIdentity(&other), "pad id")
}

func TestBuild_LabelsCacheHistoryPolicy(t *testing.T) {
	dir := t.TempDir()
	labelPath := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(labelPath, []byte(`{"id2label":{"0":"off","1":"on"}}`), 0o644))

	cfg := mockConfig(t)
	cfg.Labels = labelPath
	cfg.History = filepath.Join(dir, "state", "history.db")
	cfg.CacheEnabled = true
	cfg.CacheTTL = time.Minute
	cfg.MaxSeqLen = 10

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Journal)
	_, isMemory := a.Store.(*cache.Memory)
	assert.True(t, isMemory)

	// Mock logits have five classes; only two are labelled
	_, err = a.Classifier.Classify(context.Background(), "turn up the volume")
	require.Error(t, err)

	ids, mask, err := a.Classifier.Tokenize("turn up the volume")
	require.NoError(t, err)
	assert.Len(t, ids, 10)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}, mask)
}

func TestBuild_RedisFallback(t *testing.T) {
	cfg := mockConfig(t)
	cfg.CacheEnabled = true
	cfg.Redis = "127.0.0.1:1"

	var logs bytes.Buffer
	a, err := Build(context.Background(), cfg, zerolog.New(&logs))
	require.NoError(t, err)
	defer a.Close()

	_, isMemory := a.Store.(*cache.Memory)
	assert.True(t, isMemory)
	assert.Contains(t, logs.String(), "using in-process cache")
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing tokenizer", func(c *config.Config) { c.Tokenizer = filepath.Join(t.TempDir(), "none.txt") }},
		{"missing labels", func(c *config.Config) { c.Labels = filepath.Join(t.TempDir(), "none.yaml") }},
		{"missing model", func(c *config.Config) {
			c.UseMockInference = false
			c.Model = filepath.Join(t.TempDir(), "none.onnx")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mockConfig(t)
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

func TestInitTracer(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := InitTracer("intent-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"probe"`)
	assert.Contains(t, buf.String(), "intent-test")
}
