package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	InsertUser(ctx context.Context, user User) (User, error)
	UpdateRole(ctx context.Context, id int64, role string) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a user with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, email, name, role, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, shared.NewValidation("email", "required")
	}
	if len(password) < 8 {
		return User{}, shared.NewValidation("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.InsertUser(ctx, User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         strings.ToUpper(strings.TrimSpace(role)),
		PasswordHash: string(hash),
		IsActive:     true,
	})
}

// VerifyCredentials checks email/password and returns the user on success.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, err
	}
	if !user.IsActive {
		return User{}, shared.NewNotFound("user", email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.NewValidation("credentials", "invalid email or password")
	}
	return user, nil
}

// SetRole updates a user's static role.
func (s *Service) SetRole(ctx context.Context, id int64, role string) (User, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return User{}, shared.NewValidation("role", "required")
	}
	return s.repo.UpdateRole(ctx, id, role)
}
