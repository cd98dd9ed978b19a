// internal/middleware/request_id.go
package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "x-request-id"

// maxRequestIDLen caps client-supplied ids before they reach the logs.
const maxRequestIDLen = 128

type requestIDKey struct{}

// UnaryRequestIDInterceptor correlates one classification call across the
// logs. A well-formed x-request-id from the client is reused; anything else
// is replaced by a fresh UUID. The id is echoed in the response headers and
// attached to a child of base that handlers get with zerolog.Ctx.
func UnaryRequestIDInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		id, ok := clientRequestID(ctx)
		if !ok {
			id = uuid.NewString()
		}

		ctx = context.WithValue(ctx, requestIDKey{}, id)
		ctx = base.With().Str("request_id", id).Logger().WithContext(ctx)

		// Fails only outside a real server transport, e.g. in unit tests
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		return handler(ctx, req)
	}
}

func clientRequestID(ctx context.Context) (string, bool) {
	ids := metadata.ValueFromIncomingContext(ctx, RequestIDHeader)
	if len(ids) == 0 || !validRequestID(ids[0]) {
		return "", false
	}
	return ids[0], true
}

// validRequestID accepts visible ASCII only, so an id cannot break a log line.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// RequestIDFromContext returns the id set by UnaryRequestIDInterceptor, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
