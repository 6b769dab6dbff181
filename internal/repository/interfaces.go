package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/model"
)

// All repository interfaces in one file
type (
	// RecordRepository is the data store for clinical records. Writes that
	// carry an audit entry or an outbox event apply them in the same
	// transaction as the record itself.
	RecordRepository interface {
		CreateWithAudit(ctx context.Context, rec *model.ClinicalRecord, entry *model.AuditLog, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.ClinicalRecord, error)
		UpdateWithAudit(ctx context.Context, rec *model.ClinicalRecord, cond model.WriteCondition, entry *model.AuditLog, event *model.OutboxEvent) error
		ListByPatient(ctx context.Context, patientID uuid.UUID, filter *model.RecordFilter) ([]*model.ClinicalRecord, error)
	}

	// StaffRepository handles staff account operations
	StaffRepository interface {
		Create(ctx context.Context, staff *model.Staff) error
		Get(ctx context.Context, id uuid.UUID) (*model.Staff, error)
		GetByEmail(ctx context.Context, email string) (*model.Staff, error)
		Update(ctx context.Context, staff *model.Staff) error
	}

	// IdentityRepository resolves display identities for report rendering.
	IdentityRepository interface {
		GetPatientIdentity(ctx context.Context, id uuid.UUID) (*model.Identity, error)
		GetStaffIdentity(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	}

	// AuditRepository persists the append-only audit trail.
	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}

	// OutboxRepository hands pending lifecycle events to the worker.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		ClaimPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
	}
)
