package lockdown

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oshokin/lockdown/internal/domain/lockdown"
)

// ErrorDomain is the ErrorInfo domain of lockdown errors.
const ErrorDomain = "lockdown"

// StatusError converts a domain error to a gRPC status error with an ErrorInfo detail.
func StatusError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	kind := domain.KindOf(err)
	code := codeFor(kind)

	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}

	st := status.New(code, err.Error())

	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: ErrorDomain,
	})
	if detailErr == nil {
		st = detailed
	}

	return st.Err()
}

// FromStatus maps a gRPC status error carrying an ErrorInfo back to the
// domain sentinel, keeping the server message. Other errors pass through.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return err
	}

	for _, detail := range st.Details() {
		info, isInfo := detail.(*errdetails.ErrorInfo)
		if !isInfo || info.GetDomain() != ErrorDomain {
			continue
		}

		if sentinel := domain.SentinelFor(domain.ErrorKind(info.GetReason())); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, st.Message())
		}
	}

	return err
}

func codeFor(kind domain.ErrorKind) codes.Code {
	switch kind {
	case domain.KindBadTimeFormat:
		return codes.InvalidArgument
	case domain.KindPrivilegeMissing:
		return codes.FailedPrecondition
	case domain.KindLockUnavailable:
		return codes.Unavailable
	case domain.KindAlarmArmFailed, domain.KindPersistenceFailure:
		return codes.Internal
	default:
		return codes.Unknown
	}
}
