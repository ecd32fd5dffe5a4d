package api

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/metasync/internal/types"
)

// ErrInvalidArgument marks malformed requests.
var ErrInvalidArgument = errors.New("invalid argument")

// Error mapping:
//   unknown document or mapping      NOT_FOUND
//   malformed request, bad property  INVALID_ARGUMENT
//   unknown processor or filter      FAILED_PRECONDITION
//   extraction tool failure          INTERNAL
//   database errors                  UNAVAILABLE
//   context timeouts                 DEADLINE_EXCEEDED
// Auth errors are mapped in the auth package interceptor.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.Is(err, types.ErrDocumentNotFound), errors.Is(err, types.ErrMappingNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, types.ErrNotABlob):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrProcessorNotFound), errors.Is(err, types.ErrUnknownFilter):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, types.ErrExtractionFailed):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &pqErr), errors.As(err, &liteErr),
		errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
