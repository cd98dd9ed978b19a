// Package app assembles a pipeline.Classifier and its collaborators from
// configuration. Both intentctl and intentd start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/intent-service/internal/cache"
	"github.com/SyedDaiam9101/intent-service/internal/config"
	"github.com/SyedDaiam9101/intent-service/internal/encoder"
	"github.com/SyedDaiam9101/intent-service/internal/history"
	"github.com/SyedDaiam9101/intent-service/internal/inference"
	"github.com/SyedDaiam9101/intent-service/internal/labels"
	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
)

// memoryCacheCapacity bounds the in-process cache used without Redis.
const memoryCacheCapacity = 4096

// App owns everything Build opened.
type App struct {
	Classifier *pipeline.Classifier
	Model      inference.Model
	Labels     *labels.Map
	Store      cache.Store
	Journal    *history.Journal

	log zerolog.Logger
}

// Build loads the tokenizer, model, label table, cache and journal named in
// cfg. Any failure other than an unreachable Redis is fatal; Redis falls back
// to the in-process cache.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	log.Info().Str("path", cfg.Tokenizer).Msg("loading tokenizer")
	tok, err := encoder.Load(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	enc := encoder.New(tok)

	if cfg.Labels != "" {
		a.Labels, err = labels.Load(cfg.Labels)
		if err != nil {
			return nil, err
		}
	} else {
		a.Labels = labels.Default()
	}
	log.Info().Int("classes", a.Labels.Len()).Msg("label table ready")

	if cfg.UseMockInference {
		log.Info().Msg("using mock inference engine")
		a.Model = inference.NewMock()
	} else {
		log.Info().Str("path", cfg.Model).Msg("loading ONNX model")
		m, err := inference.New(cfg.Model,
			inference.WithSharedLibrary(cfg.ONNXLibrary),
			inference.WithIntraOpThreads(cfg.IntraOpThreads),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load ONNX model: %w", err)
		}
		a.Model = m
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithPolicy(encoder.SequencePolicy{MaxLen: cfg.MaxSeqLen, PadID: cfg.PadID}),
	}

	if cfg.CacheEnabled {
		a.Store = a.openCache(ctx, cfg)
		opts = append(opts, pipeline.WithCache(a.Store, cfg.CacheTTL, cacheIdentity(cfg)))
	}

	if cfg.History != "" {
		a.Journal, err = history.Open(cfg.History)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.History).Msg("recording predictions")
		opts = append(opts, pipeline.WithJournal(a.Journal))
	}

	a.Classifier = pipeline.New(enc, a.Model, a.Labels, opts...)
	return a, nil
}

// cacheIdentity names everything that shapes a prediction besides the label
// table, so deployments sharing a Redis only see their own entries.
func cacheIdentity(cfg *config.Config) string {
	model := "mock"
	if !cfg.UseMockInference {
		model = absPath(cfg.Model)
	}
	return fmt.Sprintf("%s|%s|%d|%d", model, absPath(cfg.Tokenizer), cfg.MaxSeqLen, cfg.PadID)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (a *App) openCache(ctx context.Context, cfg *config.Config) cache.Store {
	if cfg.Redis != "" {
		a.log.Info().Str("addr", cfg.Redis).Msg("connecting to Redis")
		r, err := cache.NewRedis(ctx, cfg.Redis)
		if err == nil {
			return r
		}
		a.log.Warn().Err(err).Msg("failed to connect to Redis, using in-process cache")
	}
	return cache.NewMemory(cfg.CacheTTL, memoryCacheCapacity)
}

// Close releases the model, cache and journal.
func (a *App) Close() error {
	var errs []error
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
		a.Journal = nil
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	if a.Model != nil {
		errs = append(errs, a.Model.Close())
		a.Model = nil
	}
	return errors.Join(errs...)
}
