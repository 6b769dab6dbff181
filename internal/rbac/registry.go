package rbac

import (
	"github.com/careops/clinic-api/internal/model"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

// Capability names, used verbatim in rejection messages so staff can see
// which capability a request was missing.
const (
	CapViewPayload         = "view_payload"
	CapEditPayload         = "edit_payload"
	CapChangeStatus        = "change_status"
	CapRevertFromCompleted = "revert_from_completed"
)

// CapabilitySet is what a role may do to a record in its current status.
type CapabilitySet struct {
	CanViewPayload         bool `json:"can_view_payload"`
	CanEditPayload         bool `json:"can_edit_payload"`
	CanChangeStatus        bool `json:"can_change_status"`
	CanRevertFromCompleted bool `json:"can_revert_from_completed"`
}

// TypeConfig captures the only two things that differ between record types:
// which non-admin role fulfills the record, and whether completion demands a
// non-empty payload. Everything else is shared by the one engine.
type TypeConfig struct {
	Type                      model.RecordType
	AssignedRole              model.Role
	RequiresPayloadToComplete bool

	// PayloadViewRoles optionally narrows payload visibility to the listed
	// roles (admin and the assigned role always see it). Nil means every
	// known role can view.
	PayloadViewRoles []model.Role
}

// DefaultTypeConfigs returns the production configuration: lab tests are
// fulfilled by laboratory technicians, prescriptions by pharmacists, and
// both demand results before completion.
func DefaultTypeConfigs() []TypeConfig {
	return []TypeConfig{
		{
			Type:                      model.RecordTypeLabTest,
			AssignedRole:              model.RoleLabTechnician,
			RequiresPayloadToComplete: true,
		},
		{
			Type:                      model.RecordTypePrescription,
			AssignedRole:              model.RolePharmacist,
			RequiresPayloadToComplete: true,
		},
	}
}

// Registry answers which capabilities a role holds over a record type in a
// given status. It is a static table: no I/O, no caching, total over the
// closed role/status domain.
type Registry struct {
	configs map[model.RecordType]TypeConfig
}

func NewRegistry(configs ...TypeConfig) *Registry {
	m := make(map[model.RecordType]TypeConfig, len(configs))
	for _, cfg := range configs {
		m[cfg.Type] = cfg
	}
	return &Registry{configs: m}
}

// Config returns the per-type configuration.
func (r *Registry) Config(recordType model.RecordType) (TypeConfig, error) {
	cfg, ok := r.configs[recordType]
	if !ok {
		return TypeConfig{}, apperrors.BadRequest("unknown record type "+string(recordType), nil)
	}
	return cfg, nil
}

// CapabilitiesFor resolves the capability set for (role, recordType, status).
// A role outside the closed set is a configuration error, not a silent deny.
func (r *Registry) CapabilitiesFor(role model.Role, recordType model.RecordType, status model.RecordStatus) (CapabilitySet, error) {
	if !role.Valid() {
		return CapabilitySet{}, apperrors.UnknownRole(string(role))
	}
	if !status.Valid() {
		return CapabilitySet{}, apperrors.BadRequest("unknown record status "+string(status), nil)
	}

	cfg, err := r.Config(recordType)
	if err != nil {
		return CapabilitySet{}, err
	}

	caps := CapabilitySet{
		CanViewPayload: r.canViewPayload(cfg, role),
	}

	switch {
	case role == model.RoleAdmin:
		caps.CanEditPayload = true
		caps.CanChangeStatus = true
		caps.CanRevertFromCompleted = status == model.StatusCompleted
	case role == cfg.AssignedRole && status != model.StatusCompleted:
		caps.CanEditPayload = true
		caps.CanChangeStatus = true
	}

	return caps, nil
}

func (r *Registry) canViewPayload(cfg TypeConfig, role model.Role) bool {
	if cfg.PayloadViewRoles == nil {
		return true
	}
	if role == model.RoleAdmin || role == cfg.AssignedRole {
		return true
	}
	for _, allowed := range cfg.PayloadViewRoles {
		if role == allowed {
			return true
		}
	}
	return false
}
