// Package pipeline runs one classification request end to end: framing and
// encoding, tensor construction, model execution and label decoding.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/intent-service/internal/cache"
	"github.com/SyedDaiam9101/intent-service/internal/encoder"
	"github.com/SyedDaiam9101/intent-service/internal/history"
	"github.com/SyedDaiam9101/intent-service/internal/inference"
	"github.com/SyedDaiam9101/intent-service/internal/labels"
	"github.com/SyedDaiam9101/intent-service/internal/metrics"
	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// Stage names used in wrapped errors, metrics and spans.
const (
	StageEncode = "encode"
	StageTensor = "tensor"
	StageInfer  = "inference"
	StageDecode = "decode"
)

const tracerName = "github.com/SyedDaiam9101/intent-service/internal/pipeline"

// ErrEmptyInput is returned for empty text. Whitespace is still framed and classified.
var ErrEmptyInput = errors.New("empty input")

// Result is the outcome of one request.
type Result struct {
	Text          string
	TokenIDs      []int64
	AttentionMask []int64
	Logits        []float32
	Probabilities []float64
	ClassIndex    int
	Label         string
	Elapsed       time.Duration
	Cached        bool
}

// Classifier wires the encoder, model and label map together. It holds no
// per-request state and is safe for concurrent use when the model is.
type Classifier struct {
	enc    *encoder.Encoder
	model  inference.Model
	labels *labels.Map
	policy encoder.SequencePolicy

	store    cache.Store
	cacheTTL time.Duration
	modelID  string

	journal *history.Journal
	log     zerolog.Logger
	tracer  trace.Tracer
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPolicy fixes the sequence length fed to the model.
func WithPolicy(p encoder.SequencePolicy) Option {
	return func(c *Classifier) {
		c.policy = p
	}
}

// WithCache stores results in store for ttl. modelID keeps results of
// different models apart.
func WithCache(store cache.Store, ttl time.Duration, modelID string) Option {
	return func(c *Classifier) {
		c.store = store
		c.cacheTTL = ttl
		c.modelID = modelID
	}
}

// WithJournal records every successful text request.
func WithJournal(j *history.Journal) Option {
	return func(c *Classifier) {
		c.journal = j
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) {
		c.log = l
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Classifier) {
		c.tracer = t
	}
}

// New creates a Classifier. A nil label map selects labels.Default.
func New(enc *encoder.Encoder, model inference.Model, m *labels.Map, opts ...Option) *Classifier {
	if m == nil {
		m = labels.Default()
	}
	c := &Classifier{
		enc:    enc,
		model:  model,
		labels: m,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Labels returns the label map used for decoding.
func (c *Classifier) Labels() *labels.Map {
	return c.labels
}

// Ready reports whether a model is attached.
func (c *Classifier) Ready() bool {
	return c != nil && c.model != nil
}

// Tokenize frames and encodes text and returns the ids and mask the model
// would see, after the sequence policy.
func (c *Classifier) Tokenize(text string) ([]int64, []int64, error) {
	ids, mask, err := c.encode(text)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", StageEncode, err)
	}
	return ids, mask, nil
}

func (c *Classifier) encode(text string) ([]int64, []int64, error) {
	if text == "" {
		return nil, nil, ErrEmptyInput
	}
	if c.enc == nil {
		return nil, nil, fmt.Errorf("%w: no encoder configured", encoder.ErrEncoding)
	}
	ids, err := c.enc.Encode(text)
	if err != nil {
		return nil, nil, err
	}
	ids, mask := c.policy.Apply(ids, encoder.BuildMask(ids))
	return ids, mask, nil
}

// Classify runs text through the whole pipeline.
func (c *Classifier) Classify(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "pipeline.Classify")
	defer span.End()

	var key string
	if c.store != nil && text != "" {
		key = cache.Key(c.modelID, text)
		if res, ok := c.lookup(ctx, key); ok {
			res.Text = text
			res.Elapsed = time.Since(start)
			span.SetAttributes(attribute.Bool("intent.cached", true), attribute.String("intent.label", res.Label))
			metrics.RecordPrediction(res.Label)
			c.record(ctx, res)
			return res, nil
		}
	}

	_, encSpan := c.tracer.Start(ctx, "pipeline.encode")
	ids, mask, err := c.encode(text)
	encSpan.End()
	if err != nil {
		return nil, c.fail(span, StageEncode, err)
	}

	res, err := c.run(ctx, span, ids, mask)
	if err != nil {
		return nil, err
	}
	res.Text = text
	res.Elapsed = time.Since(start)

	if key != "" {
		c.save(ctx, key, res)
	}
	c.record(ctx, res)

	c.log.Debug().
		Str("label", res.Label).
		Int("class_index", res.ClassIndex).
		Int("tokens", len(res.TokenIDs)).
		Dur("elapsed", res.Elapsed).
		Msg("classified")
	return res, nil
}

// ClassifyIDs runs pre-computed ids and mask through tensor construction,
// inference and decoding. The sequence policy is not applied.
func (c *Classifier) ClassifyIDs(ctx context.Context, ids, mask []int64) (*Result, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "pipeline.ClassifyIDs")
	defer span.End()

	res, err := c.run(ctx, span, ids, mask)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (c *Classifier) run(ctx context.Context, span trace.Span, ids, mask []int64) (*Result, error) {
	in, err := tensor.BuildInputs(ids, mask)
	if err != nil {
		return nil, c.fail(span, StageTensor, err)
	}
	metrics.RecordSequenceLength(in.SeqLen())
	span.SetAttributes(attribute.Int("intent.seq_len", in.SeqLen()))

	inferCtx, inferSpan := c.tracer.Start(ctx, "pipeline.infer")
	inferStart := time.Now()
	logits, err := inference.Infer(inferCtx, c.model, in)
	metrics.RecordInferenceLatency(time.Since(inferStart).Seconds())
	inferSpan.End()
	if err != nil {
		return nil, c.fail(span, StageInfer, err)
	}

	d, err := labels.Decode(logits, c.labels)
	if err != nil {
		return nil, c.fail(span, StageDecode, err)
	}
	metrics.RecordPrediction(d.Label)
	span.SetAttributes(attribute.String("intent.label", d.Label), attribute.Int("intent.class_index", d.ClassIndex))

	return &Result{
		TokenIDs:      in.InputIDs.Data,
		AttentionMask: in.AttentionMask.Data,
		Logits:        d.Logits,
		Probabilities: labels.Softmax(d.Logits),
		ClassIndex:    d.ClassIndex,
		Label:         d.Label,
	}, nil
}

// fail counts, traces and wraps an error from stage.
func (c *Classifier) fail(span trace.Span, stage string, err error) error {
	metrics.RecordError(stage)
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, stage)
	c.log.Warn().Err(err).Str("stage", stage).Msg("request aborted")
	return fmt.Errorf("%s: %w", stage, err)
}

type cachedResult struct {
	TokenIDs      []int64   `json:"token_ids"`
	AttentionMask []int64   `json:"attention_mask"`
	Logits        []float32 `json:"logits"`
	ClassIndex    int       `json:"class_index"`
	Label         string    `json:"label"`
}

func (c *Classifier) lookup(ctx context.Context, key string) (*Result, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup("error")
		c.log.Warn().Err(err).Msg("cache lookup failed")
		return nil, false
	}
	if !ok {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}

	var cr cachedResult
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		metrics.RecordCacheLookup("error")
		c.log.Warn().Err(err).Msg("discarding unreadable cache entry")
		return nil, false
	}
	// Entries from an older label table are ignored
	if label, ok := c.labels.Label(cr.ClassIndex); !ok || label != cr.Label {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
	metrics.RecordCacheLookup("hit")

	return &Result{
		TokenIDs:      cr.TokenIDs,
		AttentionMask: cr.AttentionMask,
		Logits:        cr.Logits,
		Probabilities: labels.Softmax(cr.Logits),
		ClassIndex:    cr.ClassIndex,
		Label:         cr.Label,
		Cached:        true,
	}, true
}

func (c *Classifier) save(ctx context.Context, key string, res *Result) {
	raw, err := json.Marshal(cachedResult{
		TokenIDs:      res.TokenIDs,
		AttentionMask: res.AttentionMask,
		Logits:        res.Logits,
		ClassIndex:    res.ClassIndex,
		Label:         res.Label,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, key, string(raw), c.cacheTTL); err != nil {
		c.log.Warn().Err(err).Msg("failed to store cache entry")
	}
}

func (c *Classifier) record(ctx context.Context, res *Result) {
	if c.journal == nil {
		return
	}
	err := c.journal.Record(ctx, &history.Entry{
		Text:       res.Text,
		TokenIDs:   res.TokenIDs,
		Logits:     res.Logits,
		ClassIndex: res.ClassIndex,
		Label:      res.Label,
		Elapsed:    res.Elapsed,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to record prediction")
	}
}
