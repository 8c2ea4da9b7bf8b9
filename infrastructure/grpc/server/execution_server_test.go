package server

import (
	"code-lab/domain/execution"
	"code-lab/errors"
	"code-lab/mocks"
	"code-lab/services"
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newClient(t *testing.T, executor *mocks.MockExecutor) *ExecutionClient {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	listener := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	RegisterExecutionServiceServer(s, NewExecutionServer(log, services.NewRunService(executor)))
	go func() { _ = s.Serve(listener) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		s.Stop()
	})
	return NewExecutionClient(conn)
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestExecutionServer_Run(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockExecutor(ctrl)
	client := newClient(t, executor)

	executor.EXPECT().Run(gomock.Any(), execution.Request{
		Session: "room", Language: "sh", Filename: "a.sh", Source: "echo hi",
	}).Return(execution.Result{Success: true, Output: "hi\n"}, nil).Times(1)

	response, err := client.Run(context.Background(), request(t, map[string]any{
		"session": "room", "language": "sh", "filename": "a.sh", "code": "echo hi",
	}))

	req.NoError(err)
	req.Equal("hi\n", response.GetFields()["output"].GetStringValue())
	req.True(response.GetFields()["ok"].GetBoolValue())
}

func TestExecutionServer_Run_Errors(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockExecutor(ctrl)
	client := newClient(t, executor)

	// Given a request without code
	_, err := client.Run(context.Background(), request(t, map[string]any{"language": "sh"}))
	req.Equal(codes.InvalidArgument, status.Code(err))

	// Given an infrastructure fault
	executor.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(execution.Result{}, fmt.Errorf("%w: no space left", errors.ErrInfrastructure)).Times(1)

	_, err = client.Run(context.Background(), request(t, map[string]any{"language": "sh", "code": "echo"}))
	req.Equal(codes.Internal, status.Code(err))
}
