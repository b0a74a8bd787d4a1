package binder

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// toStatus maps an error returned by a stub to a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case remote.IsMalformed(err), errors.Is(err, remote.ErrInvalidArgument), errors.Is(err, remote.ErrNotTransferable):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, remote.ErrUnknownCode):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, remote.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, remote.ErrDeadObject):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps a failed Invoke back to the remote error sentinels.
func fromStatus(err error) error {
	st := status.Convert(err)
	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = remote.ErrTransaction
	case codes.FailedPrecondition:
		sentinel = remote.ErrTransaction
	case codes.NotFound:
		sentinel = remote.ErrDeadObject
	case codes.Unimplemented:
		sentinel = remote.ErrUnknownCode
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	default:
		sentinel = remote.ErrUnavailable
	}
	return fmt.Errorf("%w: %s: %s", sentinel, st.Code(), st.Message())
}
