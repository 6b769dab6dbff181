package model

import (
	"github.com/google/uuid"
)

// Role is the closed set of staff roles. An actor holds exactly one role and
// it is fixed for the lifetime of a session token.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleLabTechnician Role = "laboratory_technician"
	RolePharmacist    Role = "pharmacist"
	RoleReceptionist  Role = "receptionist"
	RoleNurse         Role = "nurse"
)

// Roles lists every role in the closed set.
func Roles() []Role {
	return []Role{
		RoleAdmin,
		RoleDoctor,
		RoleLabTechnician,
		RolePharmacist,
		RoleReceptionist,
		RoleNurse,
	}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleLabTechnician, RolePharmacist, RoleReceptionist, RoleNurse:
		return true
	}
	return false
}

// Actor is an authenticated staff member. Every lifecycle operation takes the
// acting staff member explicitly; the engine never reaches into ambient
// session state to discover who is calling.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}
