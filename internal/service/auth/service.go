package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
	"github.com/careops/clinic-api/internal/service/audit"
	"github.com/careops/clinic-api/pkg/auth"
	apperrors "github.com/careops/clinic-api/pkg/errors"
	"github.com/careops/clinic-api/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type Service struct {
	staffRepo repository.StaffRepository
	tokens    *auth.TokenManager
	hasher    security.PasswordHasher
	auditor   *audit.Service
}

func NewService(staffRepo repository.StaffRepository, tokens *auth.TokenManager, hasher security.PasswordHasher, auditor *audit.Service) *Service {
	return &Service{
		staffRepo: staffRepo,
		tokens:    tokens,
		hasher:    hasher,
		auditor:   auditor,
	}
}

// Login authenticates a staff member and issues a session token carrying
// the role. The role is fixed for the token's lifetime.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	staff, err := s.staffRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	if staff.Status == model.StaffStatusLocked {
		if time.Since(staff.LastLoginAttempt) < lockoutDuration {
			return nil, apperrors.Unauthorized(fmt.Errorf("account is locked, please try again later"))
		}
		staff.Status = model.StaffStatusActive
		staff.LoginAttempts = 0
	}

	if err := s.hasher.Compare(staff.PasswordHash, password); err != nil {
		staff.LoginAttempts++
		staff.LastLoginAttempt = time.Now()
		if staff.LoginAttempts >= maxLoginAttempts {
			staff.Status = model.StaffStatusLocked
		}
		if err := s.staffRepo.Update(ctx, staff); err != nil {
			return nil, fmt.Errorf("failed to update login attempts: %w", err)
		}
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	staff.LoginAttempts = 0
	now := time.Now()
	staff.LastLoginAt = &now
	staff.LastLoginAttempt = now
	if err := s.staffRepo.Update(ctx, staff); err != nil {
		return nil, fmt.Errorf("failed to update login timestamp: %w", err)
	}

	token, expiresAt, err := s.tokens.Generate(staff)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	actor := staff.Actor()
	s.auditor.Log(ctx, actor, model.AuditActionLogin, model.AuditEntityStaff, staff.ID, nil)

	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Actor:       actor,
	}, nil
}

// ValidateToken resolves a session token to the acting staff member.
func (s *Service) ValidateToken(_ context.Context, token string) (model.Actor, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return model.Actor{}, apperrors.Unauthorized(err)
	}
	return claims.Actor(), nil
}

// Register creates a staff account with a hashed password.
func (s *Service) Register(ctx context.Context, staff *model.Staff, password string) error {
	if !staff.Role.Valid() {
		return apperrors.UnknownRole(string(staff.Role))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	staff.PasswordHash = hash
	staff.Status = model.StaffStatusActive

	now := time.Now()
	staff.Base = model.Base{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.staffRepo.Create(ctx, staff); err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return nil
}
