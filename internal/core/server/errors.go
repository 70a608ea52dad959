package server

import (
	"context"

	"gitlab.com/tozd/go/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/sieve/internal/types"
)

// toStatus maps domain errors to gRPC status codes.
// Timeouts map to DEADLINE_EXCEEDED, invalid rules to INVALID_ARGUMENT,
// unknown rules to NOT_FOUND, disabled rules to FAILED_PRECONDITION and
// worker failures to INTERNAL. Anything else is a storage problem and
// maps to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Unavailable
	switch {
	case errors.Is(err, types.ErrRegexTimeout), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, types.ErrInvalidRule):
		code = codes.InvalidArgument
	case errors.Is(err, types.ErrRuleNotFound):
		code = codes.NotFound
	case errors.Is(err, types.ErrRuleDisabled):
		code = codes.FailedPrecondition
	case errors.Is(err, types.ErrSubstitutionFailed):
		code = codes.Internal
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}
