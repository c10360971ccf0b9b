package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papertrade/apiserver/internal/store"
	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates registration and credential checks.
type UserService struct {
	repo        UserRepository
	initialCash decimal.Decimal
	hashCost    int
}

func NewUserService(repo UserRepository, initialCash decimal.Decimal) *UserService {
	return &UserService{
		repo:        repo,
		initialCash: initialCash,
		hashCost:    bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register creates an account funded with the configured initial cash.
func (s *UserService) Register(ctx context.Context, username, password, confirmation string) (types.User, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return types.User{}, fmt.Errorf("%w: username is required", types.ErrValidation)
	case password == "":
		return types.User{}, fmt.Errorf("%w: password is required", types.ErrValidation)
	case confirmation == "":
		return types.User{}, fmt.Errorf("%w: password confirmation is required", types.ErrValidation)
	case password != confirmation:
		return types.User{}, fmt.Errorf("%w: passwords do not match", types.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
		InitialCash:  s.initialCash,
	})
	if err != nil {
		return types.User{}, err
	}

	zap.L().Info("Registered user",
		zap.Int("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("initial_cash", user.InitialCash.String()))
	return user, nil
}

// Login returns the user whose credentials match, or ErrAuth.
func (s *UserService) Login(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username and password are required", types.ErrValidation)
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.ErrAuth
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, types.ErrAuth
	}
	return user, nil
}
