// internal/handler/handler.go
package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
)

// Handler implements the IntentClassifierServer interface on top of a
// pipeline.Classifier.
type Handler struct {
	clf *pipeline.Classifier
}

// New creates a new Handler. A nil classifier makes every call fail with
// FailedPrecondition.
func New(clf *pipeline.Classifier) *Handler {
	return &Handler{clf: clf}
}

// Classify handles a single text classification request
func (h *Handler) Classify(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	start := time.Now()
	log := zerolog.Ctx(ctx)

	if req == nil {
		return nil, invalidArgumentError("request cannot be nil")
	}
	if !h.clf.Ready() {
		return nil, failedPreconditionError("classifier not initialized")
	}

	res, err := h.clf.Classify(ctx, req.GetValue())
	if err != nil {
		log.Warn().Err(err).Msg("classification failed")
		return nil, grpcError(err)
	}

	out, err := toStruct(res)
	if err != nil {
		return nil, internalError("failed to build response: %v", err)
	}

	log.Info().
		Str("label", res.Label).
		Int("class_index", res.ClassIndex).
		Int("tokens", len(res.TokenIDs)).
		Bool("cached", res.Cached).
		Float64("total_ms", float64(time.Since(start).Microseconds())/1000.0).
		Msg("Classify")
	return out, nil
}

func toStruct(res *pipeline.Result) (*structpb.Struct, error) {
	logits := make([]interface{}, len(res.Logits))
	for i, v := range res.Logits {
		logits[i] = float64(v)
	}
	probs := make([]interface{}, len(res.Probabilities))
	for i, v := range res.Probabilities {
		probs[i] = v
	}
	ids := make([]interface{}, len(res.TokenIDs))
	for i, v := range res.TokenIDs {
		ids[i] = v
	}

	return structpb.NewStruct(map[string]interface{}{
		"class_index":   res.ClassIndex,
		"label":         res.Label,
		"logits":        logits,
		"probabilities": probs,
		"token_ids":     ids,
		"cached":        res.Cached,
	})
}

// Ensure Handler implements IntentClassifierServer at compile time
var _ IntentClassifierServer = (*Handler)(nil)
