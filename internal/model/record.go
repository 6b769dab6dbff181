package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordType distinguishes the two clinical record flavors tracked through
// the shared lifecycle.
type RecordType string

const (
	RecordTypeLabTest      RecordType = "lab_test"
	RecordTypePrescription RecordType = "prescription"
)

func (t RecordType) Valid() bool {
	return t == RecordTypeLabTest || t == RecordTypePrescription
}

// RecordStatus is the closed set of lifecycle statuses.
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusInProgress RecordStatus = "in_progress"
	StatusCompleted  RecordStatus = "completed"
	StatusCancelled  RecordStatus = "cancelled"
)

// Statuses lists every status in the closed set.
func Statuses() []RecordStatus {
	return []RecordStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}
}

func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no ordinary forward transition leaves s. A
// completed record can still be reverted by an admin; nothing leaves
// cancelled.
func (s RecordStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ClinicalRecord is a laboratory test or a prescription dispensation tracked
// from creation to a locked, reportable final state.
type ClinicalRecord struct {
	Base
	Type       RecordType   `db:"type" json:"type"`
	PatientID  uuid.UUID    `db:"patient_id" json:"patient_id"`
	OrderedBy  uuid.UUID    `db:"ordered_by" json:"ordered_by"`
	AssignedTo *uuid.UUID   `db:"assigned_to" json:"assigned_to,omitempty"`
	Status     RecordStatus `db:"status" json:"status"`
	Payload    string       `db:"payload" json:"payload"`
	Notes      string       `db:"notes" json:"notes"`
}

// PayloadVisibility classifies the payload field on a record view so callers
// can tell "no results yet" apart from "no permission" without a rendering
// layer.
type PayloadVisibility string

const (
	PayloadVisible    PayloadVisibility = "visible"
	PayloadRestricted PayloadVisibility = "restricted"
	PayloadAbsent     PayloadVisibility = "absent"
)

// RestrictedPayloadMarker replaces the payload text on redacted views. It is
// rendered verbatim in reports; the payload is never omitted silently.
const RestrictedPayloadMarker = "[restricted]"

// RecordView is a ClinicalRecord as seen by a particular actor, with the
// payload redacted according to that actor's capabilities.
type RecordView struct {
	ClinicalRecord
	PayloadVisibility PayloadVisibility `json:"payload_visibility"`
}

// CreateRecordRequest is the order placed by an ordering clinician. The
// record starts out pending.
type CreateRecordRequest struct {
	Type       RecordType `json:"type" binding:"required"`
	PatientID  string     `json:"patient_id" binding:"required,uuid"`
	AssignedTo string     `json:"assigned_to" binding:"omitempty,uuid"`
	Notes      string     `json:"notes"`
}

// UpdatePayloadRequest carries a result/notes edit.
type UpdatePayloadRequest struct {
	Payload string `json:"payload"`
	Notes   string `json:"notes"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Target RecordStatus `json:"target" binding:"required"`
}

// CompleteRequest writes the final payload and marks the record completed in
// one logical unit.
type CompleteRequest struct {
	Payload string `json:"payload"`
	Notes   string `json:"notes"`
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	Type   RecordType   `form:"type"`
	Status RecordStatus `form:"status"`
}

// WriteCondition makes a write conditional when ExpectedUpdatedAt is
// non-zero: the store rejects it with a conflict if the record changed since
// the caller loaded it.
type WriteCondition struct {
	ExpectedUpdatedAt time.Time
}
