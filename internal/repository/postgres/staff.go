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

type staffRepository struct {
	BaseRepository
}

func NewStaffRepository(base BaseRepository) repository.StaffRepository {
	return &staffRepository{base}
}

func (r *staffRepository) Create(ctx context.Context, staff *model.Staff) error {
	query := `
		INSERT INTO staff (
			id, email, name, phone, password_hash, role, status,
			login_attempts, last_login_attempt, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		staff.ID,
		staff.Email,
		staff.Name,
		staff.Phone,
		staff.PasswordHash,
		staff.Role,
		staff.Status,
		staff.LoginAttempts,
		staff.LastLoginAttempt,
		staff.CreatedAt,
		staff.UpdatedAt,
	)
	if err != nil {
		return apperrors.Storage("create staff", err)
	}
	return nil
}

func (r *staffRepository) Get(ctx context.Context, id uuid.UUID) (*model.Staff, error) {
	var staff model.Staff
	err := r.GetDB().GetContext(ctx, &staff, `SELECT * FROM staff WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("staff", err)
		}
		return nil, apperrors.Storage("get staff", err)
	}
	return &staff, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	var staff model.Staff
	err := r.GetDB().GetContext(ctx, &staff, `SELECT * FROM staff WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("staff", err)
		}
		return nil, apperrors.Storage("get staff by email", err)
	}
	return &staff, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *model.Staff) error {
	query := `
		UPDATE staff SET
			email = $1,
			name = $2,
			phone = $3,
			password_hash = $4,
			role = $5,
			status = $6,
			login_attempts = $7,
			last_login_attempt = $8,
			last_login_at = $9,
			updated_at = $10
		WHERE id = $11
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		staff.Email,
		staff.Name,
		staff.Phone,
		staff.PasswordHash,
		staff.Role,
		staff.Status,
		staff.LoginAttempts,
		staff.LastLoginAttempt,
		staff.LastLoginAt,
		staff.UpdatedAt,
		staff.ID,
	)
	if err != nil {
		return apperrors.Storage("update staff", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Storage("update staff", err)
	}
	if rows == 0 {
		return apperrors.NotFound("staff", nil)
	}
	return nil
}
