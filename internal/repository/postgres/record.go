package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

type recordRepository struct {
	BaseRepository
}

func NewRecordRepository(base BaseRepository) repository.RecordRepository {
	return &recordRepository{base}
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (*model.ClinicalRecord, error) {
	query := `
		SELECT id, type, patient_id, ordered_by, assigned_to, status, payload, notes, created_at, updated_at
		FROM clinical_records
		WHERE id = $1
	`
	var rec model.ClinicalRecord
	if err := r.GetDB().GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("clinical record", err)
		}
		return nil, apperrors.Storage("get clinical record", err)
	}
	return &rec, nil
}

func (r *recordRepository) CreateWithAudit(ctx context.Context, rec *model.ClinicalRecord, entry *model.AuditLog, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO clinical_records (
				id, type, patient_id, ordered_by, assigned_to,
				status, payload, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.ExecContext(ctx, query,
			rec.ID,
			rec.Type,
			rec.PatientID,
			rec.OrderedBy,
			rec.AssignedTo,
			rec.Status,
			rec.Payload,
			rec.Notes,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		if err != nil {
			return apperrors.Storage("create clinical record", err)
		}

		if entry != nil {
			if err := insertAuditLog(ctx, tx, entry); err != nil {
				return apperrors.Storage("create audit entry", err)
			}
		}
		if event != nil {
			if err := insertOutboxEvent(ctx, tx, event); err != nil {
				return apperrors.Storage("enqueue outbox event", err)
			}
		}
		return nil
	})
}

// UpdateWithAudit writes the record back, optionally guarded by the
// updated_at the caller loaded. A guarded write that matches no row is a
// conflict when the record still exists, not-found when it does not.
func (r *recordRepository) UpdateWithAudit(ctx context.Context, rec *model.ClinicalRecord, cond model.WriteCondition, entry *model.AuditLog, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE clinical_records SET
				assigned_to = $1,
				status = $2,
				payload = $3,
				notes = $4,
				updated_at = $5
			WHERE id = $6
		`
		args := []interface{}{
			rec.AssignedTo,
			rec.Status,
			rec.Payload,
			rec.Notes,
			rec.UpdatedAt,
			rec.ID,
		}
		if !cond.ExpectedUpdatedAt.IsZero() {
			query += fmt.Sprintf(" AND updated_at = $%d", len(args)+1)
			args = append(args, cond.ExpectedUpdatedAt)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperrors.Storage("update clinical record", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return apperrors.Storage("update clinical record", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM clinical_records WHERE id = $1)`, rec.ID); err != nil {
				return apperrors.Storage("update clinical record", err)
			}
			if exists {
				return apperrors.Conflict("clinical record")
			}
			return apperrors.NotFound("clinical record", nil)
		}

		if entry != nil {
			if err := insertAuditLog(ctx, tx, entry); err != nil {
				return apperrors.Storage("create audit entry", err)
			}
		}
		if event != nil {
			if err := insertOutboxEvent(ctx, tx, event); err != nil {
				return apperrors.Storage("enqueue outbox event", err)
			}
		}
		return nil
	})
}

func (r *recordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, filter *model.RecordFilter) ([]*model.ClinicalRecord, error) {
	query := `
		SELECT id, type, patient_id, ordered_by, assigned_to, status, payload, notes, created_at, updated_at
		FROM clinical_records
		WHERE patient_id = $1
	`
	args := []interface{}{patientID}

	if filter != nil {
		if filter.Type != "" {
			query += fmt.Sprintf(" AND type = $%d", len(args)+1)
			args = append(args, filter.Type)
		}
		if filter.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", len(args)+1)
			args = append(args, filter.Status)
		}
	}

	query += " ORDER BY created_at DESC"

	var records []*model.ClinicalRecord
	if err := r.GetDB().SelectContext(ctx, &records, query, args...); err != nil {
		return nil, apperrors.Storage("list clinical records", err)
	}
	return records, nil
}

func insertAuditLog(ctx context.Context, tx *sqlx.Tx, entry *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, actor_role, action, entity_type, entity_id,
			changes, ip_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Changes,
		entry.IPAddress,
		entry.CreatedAt,
	)
	return err
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	return err
}
