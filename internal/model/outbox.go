package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusProcessed  OutboxStatus = "PROCESSED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// Lifecycle event types published through the outbox.
const (
	EventRecordCreated   = "RECORD_CREATED"
	EventRecordUpdated   = "RECORD_UPDATED"
	EventRecordCompleted = "RECORD_COMPLETED"
	EventRecordReverted  = "RECORD_REVERTED"
	EventRecordCancelled = "RECORD_CANCELLED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// RecordEventPayload is the message body published for every lifecycle
// mutation. The worker uses it to drive notifications.
type RecordEventPayload struct {
	RecordID   uuid.UUID    `json:"record_id"`
	RecordType RecordType   `json:"record_type"`
	PatientID  uuid.UUID    `json:"patient_id"`
	OrderedBy  uuid.UUID    `json:"ordered_by"`
	ActorID    uuid.UUID    `json:"actor_id"`
	ActorRole  Role         `json:"actor_role"`
	FromStatus RecordStatus `json:"from_status,omitempty"`
	ToStatus   RecordStatus `json:"to_status,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
