package lifecycle

import (
	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/rbac"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

// Machine enforces the clinical record status graph:
//
//	pending -> in_progress -> completed
//	pending ------------------^    |
//	    \-> cancelled <-/     admin revert -> pending
//
// completed is terminal unless an admin reverts it; nothing leaves
// cancelled. Guards are resolved through the role registry against the
// record's current status.
type Machine struct {
	registry *rbac.Registry
}

func NewMachine(registry *rbac.Registry) *Machine {
	return &Machine{registry: registry}
}

// Transition validates the requested status change and, when legal, applies
// it to rec. The returned bool reports whether the record actually changed:
// a request targeting the record's current status is a no-op success, so
// callers know not to stamp updated_at.
func (m *Machine) Transition(rec *model.ClinicalRecord, actor model.Actor, target model.RecordStatus) (bool, error) {
	if !target.Valid() {
		return false, apperrors.BadRequest("unknown record status "+string(target), nil)
	}

	caps, err := m.registry.CapabilitiesFor(actor.Role, rec.Type, rec.Status)
	if err != nil {
		return false, err
	}

	if target == rec.Status {
		return false, nil
	}

	// The sole backward edge: completed -> pending, admin only. Payload,
	// assignment and creation timestamp survive the revert.
	if rec.Status == model.StatusCompleted && target == model.StatusPending {
		if !caps.CanRevertFromCompleted {
			return false, apperrors.Forbidden(rbac.CapRevertFromCompleted, string(actor.Role))
		}
		rec.Status = target
		return true, nil
	}

	if rec.Status.Terminal() {
		return false, apperrors.IllegalTransition(string(rec.Status), string(target))
	}

	switch target {
	case model.StatusInProgress:
		if rec.Status != model.StatusPending {
			return false, apperrors.IllegalTransition(string(rec.Status), string(target))
		}
	case model.StatusCompleted:
		// The one substantive business guard: completion demands results.
		// Checked before the capability so an empty payload is reported as
		// such for every role, admin included.
		cfg, err := m.registry.Config(rec.Type)
		if err != nil {
			return false, err
		}
		if cfg.RequiresPayloadToComplete && rec.Payload == "" {
			return false, apperrors.IncompleteRecord(string(rec.Type))
		}
	case model.StatusCancelled:
		// any non-terminal status may be cancelled
	default:
		return false, apperrors.IllegalTransition(string(rec.Status), string(target))
	}

	if !caps.CanChangeStatus {
		return false, apperrors.Forbidden(rbac.CapChangeStatus, string(actor.Role))
	}

	rec.Status = target
	return true, nil
}

// AllowedTargets lists the statuses the actor could legally move the record
// to from its current status. Used by the API to tell callers which actions
// to offer.
func (m *Machine) AllowedTargets(rec *model.ClinicalRecord, actor model.Actor) ([]model.RecordStatus, error) {
	caps, err := m.registry.CapabilitiesFor(actor.Role, rec.Type, rec.Status)
	if err != nil {
		return nil, err
	}

	var targets []model.RecordStatus
	switch rec.Status {
	case model.StatusPending:
		if caps.CanChangeStatus {
			targets = append(targets, model.StatusInProgress, model.StatusCompleted, model.StatusCancelled)
		}
	case model.StatusInProgress:
		if caps.CanChangeStatus {
			targets = append(targets, model.StatusCompleted, model.StatusCancelled)
		}
	case model.StatusCompleted:
		if caps.CanRevertFromCompleted {
			targets = append(targets, model.StatusPending)
		}
	case model.StatusCancelled:
		// nothing leaves cancelled
	}
	return targets, nil
}
