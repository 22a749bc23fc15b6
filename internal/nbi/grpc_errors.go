package nbi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/orbital-power-sim/core"
	"github.com/signalsfoundry/orbital-power-sim/internal/simulation"
	"github.com/signalsfoundry/orbital-power-sim/kb"
)

// ErrInvalidArgument marks malformed RPC payloads.
var ErrInvalidArgument = errors.New("invalid argument")

// ToStatusError maps simulator errors onto gRPC status codes.
//
// A run that failed after validation is FailedPrecondition unless the cause
// is more specific: an unusable TLE is InvalidArgument and an exceeded run
// timeout is DeadlineExceeded.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, simulation.ErrInvalidRequest),
		errors.Is(err, core.ErrProviderConstruction),
		errors.Is(err, core.ErrUnknownPropagationMethod):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, core.ErrTooManyPoints),
		errors.Is(err, simulation.ErrRunFailed):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, kb.ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
