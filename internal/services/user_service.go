package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/models"
)

const maxNameLength = 100

var ErrInvalidName = errors.New("name must be between 1 and 100 characters")

type UserService struct {
	db     core.DbClient
	ledger *quota.Ledger
}

func NewUserService(db core.DbClient, ledger *quota.Ledger) *UserService {
	return &UserService{db: db, ledger: ledger}
}

// Status returns the user's quota record, creating it on first sight.
func (s *UserService) Status(ctx context.Context, userID string) (*quota.Status, error) {
	return s.ledger.Status(ctx, userID)
}

func (s *UserService) UpdateName(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return ErrInvalidName
	}
	if err := s.db.EnsureUser(ctx, userID); err != nil {
		return err
	}
	return s.db.UpdateUserName(ctx, userID, name)
}

// History lists the user's chat turns oldest first, optionally for one document.
func (s *UserService) History(ctx context.Context, userID, documentID string) ([]models.ChatTurn, error) {
	var filter *string
	if documentID != "" {
		filter = &documentID
	}
	turns, err := s.db.ListChatTurns(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	return turns, nil
}
