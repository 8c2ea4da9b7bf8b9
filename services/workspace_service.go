package services

import (
	"code-lab/contract"
	"code-lab/domain/session"
	"code-lab/errors"
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type IWorkspaceService interface {
	Files(ctx context.Context, sessionID session.ID) (session.Files, error)
	Save(ctx context.Context, cmd SaveFileCommand) error
	Search(ctx context.Context, sessionID session.ID, text string) ([]string, error)
}

// SaveFileCommand is an out-of-band write, not tied to a connection.
// Content is a pointer: an empty file is valid, a missing one is not.
type SaveFileCommand struct {
	Session  session.ID `validate:"required"`
	Filename string     `validate:"required"`
	Content  *string    `validate:"required"`
}

type WorkspaceService struct {
	synchronizer contract.ISynchronizer
	searcher     contract.FileSearcher
	validator    *validator.Validate
}

func NewWorkspaceService(synchronizer contract.ISynchronizer, searcher contract.FileSearcher) *WorkspaceService {
	return &WorkspaceService{synchronizer: synchronizer, searcher: searcher, validator: validator.New()}
}

func (s *WorkspaceService) Files(ctx context.Context, sessionID session.ID) (session.Files, error) {
	return s.synchronizer.Files(ctx, sessionID)
}

// Save overwrites a file and notifies every connection of the session,
// none of them being the origin of the write.
func (s *WorkspaceService) Save(ctx context.Context, cmd SaveFileCommand) error {
	if err := s.validator.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBadRequest, err)
	}
	return s.synchronizer.UpdateFile(ctx, "", session.UpdateFileCommand{
		Session:  cmd.Session,
		Filename: cmd.Filename,
		Content:  *cmd.Content,
	})
}

func (s *WorkspaceService) Search(ctx context.Context, sessionID session.ID, text string) ([]string, error) {
	if sessionID == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: session and query are required", errors.ErrBadRequest)
	}
	matches, err := s.searcher.Search(ctx, sessionID, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInfrastructure, err)
	}
	return matches, nil
}
