package model

import (
	"github.com/google/uuid"
)

// Identity is the display identity of a patient or staff member as rendered
// into reports. Lookups that fail degrade to placeholder text; a report is
// never aborted because a referenced identity is missing.
type Identity struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Name    string    `json:"name" db:"name"`
	Contact string    `json:"contact" db:"contact"`
}

// RecordIdentities bundles the identities referenced by a single record.
type RecordIdentities struct {
	Patient    Identity
	OrderedBy  Identity
	AssignedTo Identity
}
