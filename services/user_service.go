package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/petanque-connect/server/models"
	"github.com/petanque-connect/server/repositories"
)

type UserService interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	// The directory is public read; never expose the email through it.
	user.Email = ""
	return user, nil
}
