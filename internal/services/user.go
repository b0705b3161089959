package services

import (
	"context"
	"time"

	"github.com/securenotes/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByResetToken(ctx context.Context, token string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	SetPhotoKey(ctx context.Context, id int, key string) error
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) GetByResetToken(ctx context.Context, token string) (types.User, error) {
	return s.repo.GetByResetToken(ctx, token)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) SetResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error {
	return s.repo.SetResetToken(ctx, id, token, expiresAt)
}

func (s *UserService) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return s.repo.UpdatePassword(ctx, id, passwordHash)
}

func (s *UserService) SetPhotoKey(ctx context.Context, id int, key string) error {
	return s.repo.SetPhotoKey(ctx, id, key)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
