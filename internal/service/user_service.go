package service

import (
	"context"
	"fmt"

	"github.com/marketvision/cardgenbot/internal/models"
	"github.com/marketvision/cardgenbot/internal/repository"
)

type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, firstName string, defaultBalance int) (*models.User, bool, error) {
	user, created, err := s.users.Ensure(ctx, telegramID, username, firstName, defaultBalance)
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return user, created, nil
}

func (s *UserService) SetPreferredImageCount(ctx context.Context, userID int64, count int) error {
	switch count {
	case 1, 2, 4:
	default:
		return fmt.Errorf("unsupported image count: %d", count)
	}
	return s.users.SetPreferredImageCount(ctx, userID, count)
}

func (s *UserService) MarkCountPromptSeen(ctx context.Context, userID int64) error {
	return s.users.MarkCountPromptSeen(ctx, userID)
}
