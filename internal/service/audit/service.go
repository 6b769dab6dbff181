package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	Changes   interface{}
	IPAddress string
}

// Log creates an audit log entry. Lifecycle mutations are audited
// transactionally by the record repository; this path covers everything
// else (logins, report generation).
func (s *Service) Log(ctx context.Context, actor model.Actor, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	var changes json.RawMessage
	var ipAddress string
	if opts != nil {
		if opts.Changes != nil {
			raw, err := json.Marshal(opts.Changes)
			if err != nil {
				return err
			}
			changes = raw
		}
		ipAddress = opts.IPAddress
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
		CreatedAt:  time.Now(),
	}

	return s.repo.Create(ctx, entry)
}

// Trail returns the audit history for a single entity, newest first.
func (s *Service) Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}
