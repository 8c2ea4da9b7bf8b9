package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapToHTTPStatus(t *testing.T) {
	req := require.New(t)

	req.Equal(http.StatusOK, MapToHTTPStatus(nil))
	req.Equal(http.StatusBadRequest, MapToHTTPStatus(fmt.Errorf("%w: code is required", ErrBadRequest)))
	req.Equal(http.StatusInternalServerError, MapToHTTPStatus(fmt.Errorf("%w: disk full", ErrInfrastructure)))
	req.Equal(http.StatusInternalServerError, MapToHTTPStatus(fmt.Errorf("anything else")))
}

func TestMapToGRPCError(t *testing.T) {
	req := require.New(t)

	req.NoError(MapToGRPCError(nil))
	req.Equal(codes.InvalidArgument, status.Code(MapToGRPCError(fmt.Errorf("%w: missing", ErrBadRequest))))
	req.Equal(codes.Internal, status.Code(MapToGRPCError(fmt.Errorf("%w: disk full", ErrInfrastructure))))
	req.Equal(codes.Unknown, status.Code(MapToGRPCError(fmt.Errorf("anything else"))))
}
