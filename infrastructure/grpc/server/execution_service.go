package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The execution service speaks the well-known Struct message in both
// directions, so no generated code is needed on either side.
//
// Request fields: session, language, filename, code (strings).
// Response fields: output (string), ok (bool).
const (
	ExecutionServiceName = "codelab.ExecutionService"
	RunMethod            = "/" + ExecutionServiceName + "/Run"
)

type ExecutionServiceServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ExecutionServiceDesc = grpc.ServiceDesc{
	ServiceName: ExecutionServiceName,
	HandlerType: (*ExecutionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codelab/execution.proto",
}

func RegisterExecutionServiceServer(s grpc.ServiceRegistrar, srv ExecutionServiceServer) {
	s.RegisterService(&ExecutionServiceDesc, srv)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutionServiceServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutionServiceServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ExecutionClient calls the execution service.
type ExecutionClient struct {
	cc grpc.ClientConnInterface
}

func NewExecutionClient(cc grpc.ClientConnInterface) *ExecutionClient {
	return &ExecutionClient{cc: cc}
}

func (c *ExecutionClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
