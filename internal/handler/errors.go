// internal/handler/errors.go
package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/intent-service/internal/encoder"
	"github.com/SyedDaiam9101/intent-service/internal/inference"
	"github.com/SyedDaiam9101/intent-service/internal/labels"
	"github.com/SyedDaiam9101/intent-service/internal/pipeline"
	"github.com/SyedDaiam9101/intent-service/internal/tensor"
)

// grpcError maps pipeline errors to gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, pipeline.ErrEmptyInput):
		return status.Errorf(codes.InvalidArgument, "text cannot be empty")

	case errors.Is(err, encoder.ErrEncoding):
		return status.Errorf(codes.InvalidArgument, "text could not be encoded: %v", err)

	case errors.Is(err, labels.ErrUnknownClass):
		return status.Errorf(codes.Internal, "model and label table disagree: %v", err)

	// Checked before ErrShapeMismatch: a bad logits shape wraps both
	case errors.Is(err, inference.ErrInference):
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)

	case errors.Is(err, tensor.ErrShapeMismatch):
		return status.Errorf(codes.InvalidArgument, "input shape mismatch: %v", err)

	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// internalError creates an Internal gRPC error
func internalError(format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, format, args...)
}
