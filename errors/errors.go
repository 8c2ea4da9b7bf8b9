package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
	ErrInvalidReplacement  = fmt.Errorf("replacement must be a single character")
	ErrBadRequest          = fmt.Errorf("bad request")
	ErrUnsupportedLanguage = fmt.Errorf("language not supported")
	ErrCompileFailed       = fmt.Errorf("compilation failed")
	ErrRunFailed           = fmt.Errorf("run failed")
	ErrTimeout             = fmt.Errorf("timed out")
	ErrInfrastructure      = fmt.Errorf("infrastructure error")
	ErrInvalidAdapter      = fmt.Errorf("invalid language adapter")
	ErrConnectionClosed    = fmt.Errorf("connection closed")
	ErrNotJoined           = fmt.Errorf("connection has not joined a session")
)

// MapToHTTPStatus translates a service error into a response status code.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case stderrors.Is(err, ErrBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case stderrors.Is(err, ErrInfrastructure):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
