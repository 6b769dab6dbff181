package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

type identityRepository struct {
	BaseRepository
}

func NewIdentityRepository(base BaseRepository) repository.IdentityRepository {
	return &identityRepository{base}
}

func (r *identityRepository) GetPatientIdentity(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	query := `SELECT id, name, contact FROM patients WHERE id = $1`

	var identity model.Identity
	if err := r.GetDB().GetContext(ctx, &identity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Storage("get patient identity", err)
	}
	return &identity, nil
}

func (r *identityRepository) GetStaffIdentity(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	query := `SELECT id, name, COALESCE(NULLIF(phone, ''), email) AS contact FROM staff WHERE id = $1`

	var identity model.Identity
	if err := r.GetDB().GetContext(ctx, &identity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("staff", err)
		}
		return nil, apperrors.Storage("get staff identity", err)
	}
	return &identity, nil
}
