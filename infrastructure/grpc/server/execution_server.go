package server

import (
	"code-lab/errors"
	"code-lab/services"
	"context"
	"log/slog"

	"google.golang.org/protobuf/types/known/structpb"
)

var _ ExecutionServiceServer = (*ExecutionServer)(nil)

type ExecutionServer struct {
	log  *slog.Logger
	runs services.IRunService
}

func NewExecutionServer(log *slog.Logger, runs services.IRunService) *ExecutionServer {
	return &ExecutionServer{log: log, runs: runs}
}

// Run has the semantics of POST /run: a failing program is a response
// with ok false, only bad requests and infrastructure faults are errors.
func (s *ExecutionServer) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	result, err := s.runs.Run(ctx, services.RunCommand{
		Session:  fields["session"].GetStringValue(),
		Language: fields["language"].GetStringValue(),
		Filename: fields["filename"].GetStringValue(),
		Code:     fields["code"].GetStringValue(),
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"output": structpb.NewStringValue(result.Output),
		"ok":     structpb.NewBoolValue(result.Success),
	}}, nil
}
