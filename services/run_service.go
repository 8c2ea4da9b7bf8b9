package services

import (
	"code-lab/contract"
	"code-lab/domain/execution"
	"code-lab/domain/session"
	"code-lab/errors"
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// AnonymousSession scopes the runs submitted without a session.
const AnonymousSession session.ID = "anonymous"

type IRunService interface {
	Run(ctx context.Context, cmd RunCommand) (execution.Result, error)
}

type RunCommand struct {
	Session  string
	Language string `validate:"required"`
	Filename string
	Code     string `validate:"required"`
}

type RunService struct {
	executor  contract.Executor
	validator *validator.Validate
}

func NewRunService(executor contract.Executor) *RunService {
	return &RunService{executor: executor, validator: validator.New()}
}

func (s *RunService) Run(ctx context.Context, cmd RunCommand) (execution.Result, error) {
	if err := s.validator.Struct(cmd); err != nil {
		return execution.Result{}, fmt.Errorf("%w: %v", errors.ErrBadRequest, err)
	}
	sessionID := session.ID(cmd.Session)
	if sessionID == "" {
		sessionID = AnonymousSession
	}
	return s.executor.Run(ctx, execution.Request{
		Session:  sessionID,
		Language: execution.Language(cmd.Language),
		Filename: cmd.Filename,
		Source:   cmd.Code,
	})
}
