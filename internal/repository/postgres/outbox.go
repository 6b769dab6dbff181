package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Storage("create outbox event", err)
	}
	return nil
}

// staleClaimAfter is how long a claimed event may sit in PROCESSING before
// another worker may requeue it. Covers workers that die mid-batch.
const staleClaimAfter = "5 minutes"

// ClaimPendingEvents marks a batch of pending events as PROCESSING and
// returns them. The claim is a single statement, so concurrent workers
// cannot pick up the same rows; SKIP LOCKED keeps them from queueing on
// each other's in-flight claims. Delivery is at-least-once: a claim whose
// worker dies is requeued after staleClaimAfter.
func (r *outboxRepository) ClaimPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			   OR (status = $1 AND updated_at < NOW() - $3::interval)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, payload, status, error_message, retry_count, created_at, updated_at, processed_at
	`
	var events []*model.OutboxEvent
	err := r.GetDB().SelectContext(ctx, &events, query,
		model.OutboxStatusProcessing,
		model.OutboxStatusPending,
		staleClaimAfter,
		limit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("claim pending outbox events", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE outbox_events
			SET status = $1,
				error_message = $2,
				retry_count = CASE WHEN $1 = 'FAILED' THEN retry_count + 1 ELSE retry_count END,
				processed_at = CASE WHEN $1 = 'PROCESSED' THEN NOW() ELSE processed_at END,
				updated_at = $3
			WHERE id = $4
		`
		_, err := tx.ExecContext(ctx, query, status, errorMessage, time.Now(), id)
		if err != nil {
			return apperrors.Storage("update outbox event", err)
		}
		return nil
	})
}
