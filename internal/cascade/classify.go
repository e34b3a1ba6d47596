package cascade

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/omnihear/omnihear/internal/utils"
)

// Kind buckets a provider failure into the categories the cascade acts on.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindRateLimited      Kind = "rate_limited"
	KindInvalidInput     Kind = "invalid_input"
	KindPermissionDenied Kind = "permission_denied"
	KindEmpty            Kind = "empty"
	KindUnknown          Kind = "unknown"
)

// Code maps a kind onto the shared error taxonomy.
func (k Kind) Code() utils.Code {
	switch k {
	case KindNotFound:
		return utils.CodeNotFound
	case KindRateLimited:
		return utils.CodeRateLimited
	case KindInvalidInput:
		return utils.CodeInvalidArgument
	case KindPermissionDenied:
		return utils.CodeForbidden
	case KindEmpty:
		return utils.CodeEmptyResult
	default:
		return utils.CodeUnavailable
	}
}

// Classify buckets any provider error. Both Google stacks are covered: the
// speech client surfaces gRPC status codes, the Vertex SDK surfaces
// *googleapi.Error with HTTP statuses. Timeouts classify as Unknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var er *emptyResult
	if errors.As(err, &er) {
		return KindEmpty
	}

	// Errors injected through the in-house contract (and test fakes).
	var ae *utils.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case utils.CodeNotFound:
			return KindNotFound
		case utils.CodeRateLimited:
			return KindRateLimited
		case utils.CodeInvalidArgument:
			return KindInvalidInput
		case utils.CodeForbidden, utils.CodeUnauthorized:
			return KindPermissionDenied
		case utils.CodeEmptyResult:
			return KindEmpty
		}
		return KindUnknown
	}

	var gae *googleapi.Error
	if errors.As(err, &gae) {
		switch gae.Code {
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusBadRequest:
			return KindInvalidInput
		case http.StatusForbidden, http.StatusUnauthorized:
			return KindPermissionDenied
		}
		return KindUnknown
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.NotFound:
			return KindNotFound
		case codes.ResourceExhausted:
			return KindRateLimited
		case codes.InvalidArgument, codes.OutOfRange:
			return KindInvalidInput
		case codes.PermissionDenied, codes.Unauthenticated:
			return KindPermissionDenied
		}
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	return KindUnknown
}
