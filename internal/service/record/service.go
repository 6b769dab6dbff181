package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/identity"
	"github.com/careops/clinic-api/internal/lifecycle"
	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/rbac"
	"github.com/careops/clinic-api/internal/report"
	"github.com/careops/clinic-api/internal/repository"
	"github.com/careops/clinic-api/internal/service/audit"
	apperrors "github.com/careops/clinic-api/pkg/errors"
	"github.com/careops/clinic-api/pkg/metrics"
)

// Service is the single authorized entry point over clinical records. It
// composes the role registry, the status machine and the data store; every
// call takes the acting staff member explicitly.
type Service struct {
	repo     repository.RecordRepository
	registry *rbac.Registry
	machine  *lifecycle.Machine
	resolver *identity.Resolver
	auditor  *audit.Service
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(repo repository.RecordRepository, registry *rbac.Registry, machine *lifecycle.Machine, resolver *identity.Resolver) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		machine:  machine,
		resolver: resolver,
		now:      time.Now,
	}
}

// WithAuditor makes the service audit read-side operations (report
// generation). Mutations are always audited transactionally by the
// repository regardless.
func (s *Service) WithAuditor(auditor *audit.Service) *Service {
	s.auditor = auditor
	return s
}

// WithMetrics enables lifecycle instrumentation.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Create places a new order. Records start out pending; only the ordering
// roles (doctor, admin) may create them.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateRecordRequest) (*model.RecordView, error) {
	if !actor.Role.Valid() {
		return nil, apperrors.UnknownRole(string(actor.Role))
	}
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("create_record", string(actor.Role))
	}
	if !req.Type.Valid() {
		return nil, apperrors.BadRequest("unknown record type "+string(req.Type), nil)
	}
	if _, err := s.registry.Config(req.Type); err != nil {
		return nil, err
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperrors.BadRequest("invalid patient ID", err)
	}

	now := s.now()
	rec := &model.ClinicalRecord{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Type:      req.Type,
		PatientID: patientID,
		OrderedBy: actor.ID,
		Status:    model.StatusPending,
		Notes:     req.Notes,
	}
	if req.AssignedTo != "" {
		assignee, err := uuid.Parse(req.AssignedTo)
		if err != nil {
			return nil, apperrors.BadRequest("invalid assignee ID", err)
		}
		rec.AssignedTo = &assignee
	}

	entry := s.auditEntry(actor, model.AuditActionCreate, rec, nil)
	event := s.event(model.EventRecordCreated, rec, actor, "", rec.Status)
	if err := s.repo.CreateWithAudit(ctx, rec, entry, event); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return s.view(rec, actor)
}

// Get fetches a record as seen by the actor. Reads are not authorization
// gated beyond payload redaction: a viewer without the view capability still
// receives the record, with the payload replaced by the restricted marker so
// "no results yet" and "no permission" stay distinguishable.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.RecordView, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(rec, actor)
}

// ListByPatient lists a patient's records, each redacted for the actor.
func (s *Service) ListByPatient(ctx context.Context, actor model.Actor, patientID uuid.UUID, filter *model.RecordFilter) ([]*model.RecordView, error) {
	records, err := s.repo.ListByPatient(ctx, patientID, filter)
	if err != nil {
		return nil, err
	}

	views := make([]*model.RecordView, 0, len(records))
	for _, rec := range records {
		view, err := s.view(rec, actor)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdatePayload writes result text and notes. The edit capability is
// evaluated against the record's current status, so a completed record is
// frozen for everyone but an admin.
func (s *Service) UpdatePayload(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdatePayloadRequest, cond model.WriteCondition) (*model.RecordView, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	caps, err := s.registry.CapabilitiesFor(actor.Role, rec.Type, rec.Status)
	if err != nil {
		return nil, err
	}
	if !caps.CanEditPayload {
		return nil, apperrors.Forbidden(rbac.CapEditPayload, string(actor.Role))
	}

	rec.Payload = req.Payload
	rec.Notes = req.Notes
	rec.UpdatedAt = s.now()

	entry := s.auditEntry(actor, model.AuditActionUpdate, rec, nil)
	event := s.event(model.EventRecordUpdated, rec, actor, rec.Status, rec.Status)
	if err := s.repo.UpdateWithAudit(ctx, rec, cond, entry, event); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	return s.view(rec, actor)
}

// TransitionStatus moves the record along the status graph. A request
// targeting the current status is a no-op success and does not touch
// updated_at.
func (s *Service) TransitionStatus(ctx context.Context, actor model.Actor, id uuid.UUID, target model.RecordStatus, cond model.WriteCondition) (*model.RecordView, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	changed, err := s.machine.Transition(rec, actor, target)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TransitionsRejected.WithLabelValues(rejectionReason(err)).Inc()
		}
		return nil, err
	}
	if !changed {
		return s.view(rec, actor)
	}

	rec.UpdatedAt = s.now()

	action := model.AuditActionTransition
	eventType := model.EventRecordUpdated
	switch {
	case target == model.StatusCompleted:
		eventType = model.EventRecordCompleted
	case target == model.StatusCancelled:
		eventType = model.EventRecordCancelled
	case from == model.StatusCompleted && target == model.StatusPending:
		action = model.AuditActionRevert
		eventType = model.EventRecordReverted
	}

	entry := s.auditEntry(actor, action, rec, map[string]string{
		"from": string(from),
		"to":   string(target),
	})
	event := s.event(eventType, rec, actor, from, target)
	if err := s.repo.UpdateWithAudit(ctx, rec, cond, entry, event); err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(rec.Type), string(target)).Inc()
	}
	return s.view(rec, actor)
}

// Complete writes the final payload and marks the record completed as one
// logical unit. If the payload write lands but the status guard then fails,
// the payload is deliberately retained and the guard error is returned so
// the caller can retry the status change alone.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.CompleteRequest, cond model.WriteCondition) (*model.RecordView, error) {
	if _, err := s.UpdatePayload(ctx, actor, id, &model.UpdatePayloadRequest{Payload: req.Payload, Notes: req.Notes}, cond); err != nil {
		return nil, err
	}

	// The payload write advanced updated_at, so the caller's precondition
	// no longer applies to the second step.
	return s.TransitionStatus(ctx, actor, id, model.StatusCompleted, model.WriteCondition{})
}

// Revert re-opens a completed record. It is the sole backward edge and fails
// closed for anyone without the revert capability. Payload and assignment
// survive.
func (s *Service) Revert(ctx context.Context, actor model.Actor, id uuid.UUID, cond model.WriteCondition) (*model.RecordView, error) {
	return s.TransitionStatus(ctx, actor, id, model.StatusPending, cond)
}

// Assign sets the fulfilling staff member. Assignment follows the payload
// freeze rule: only an admin may touch it once the record is completed, and
// a cancelled record is never reassigned.
func (s *Service) Assign(ctx context.Context, actor model.Actor, id uuid.UUID, assignee uuid.UUID, cond model.WriteCondition) (*model.RecordView, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.StatusCancelled {
		return nil, &apperrors.AppError{
			Code:    apperrors.ErrForbidden,
			Message: "cannot assign a cancelled record",
		}
	}

	caps, err := s.registry.CapabilitiesFor(actor.Role, rec.Type, rec.Status)
	if err != nil {
		return nil, err
	}
	if !caps.CanChangeStatus {
		return nil, apperrors.Forbidden(rbac.CapChangeStatus, string(actor.Role))
	}

	rec.AssignedTo = &assignee
	rec.UpdatedAt = s.now()

	entry := s.auditEntry(actor, model.AuditActionUpdate, rec, map[string]string{"assigned_to": assignee.String()})
	event := s.event(model.EventRecordUpdated, rec, actor, rec.Status, rec.Status)
	if err := s.repo.UpdateWithAudit(ctx, rec, cond, entry, event); err != nil {
		return nil, fmt.Errorf("failed to assign record: %w", err)
	}

	return s.view(rec, actor)
}

// Report renders the plain-text report for print, download and clipboard.
// The payload fed to the builder has already been redacted for the actor.
func (s *Service) Report(ctx context.Context, actor model.Actor, id uuid.UUID) (string, error) {
	view, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}

	ids := s.resolver.ForRecord(ctx, &view.ClinicalRecord)
	generatedBy := model.Identity{ID: actor.ID, Name: actor.Name}
	text := report.Build(view, ids, generatedBy, s.now())

	if s.auditor != nil {
		s.auditor.Log(ctx, actor, model.AuditActionReport, model.AuditEntityRecord, id, nil)
	}
	if s.metrics != nil {
		s.metrics.ReportsGenerated.Inc()
	}
	return text, nil
}

// AllowedTargets lists the status changes the actor may request on the
// record, for clients deciding which actions to offer.
func (s *Service) AllowedTargets(ctx context.Context, actor model.Actor, id uuid.UUID) ([]model.RecordStatus, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.machine.AllowedTargets(rec, actor)
}

func (s *Service) view(rec *model.ClinicalRecord, actor model.Actor) (*model.RecordView, error) {
	caps, err := s.registry.CapabilitiesFor(actor.Role, rec.Type, rec.Status)
	if err != nil {
		return nil, err
	}

	view := &model.RecordView{ClinicalRecord: *rec}
	switch {
	case !caps.CanViewPayload:
		view.Payload = model.RestrictedPayloadMarker
		view.PayloadVisibility = model.PayloadRestricted
	case rec.Payload == "":
		view.PayloadVisibility = model.PayloadAbsent
	default:
		view.PayloadVisibility = model.PayloadVisible
	}
	return view, nil
}

func (s *Service) auditEntry(actor model.Actor, action string, rec *model.ClinicalRecord, changes map[string]string) *model.AuditLog {
	var raw json.RawMessage
	if changes != nil {
		raw, _ = json.Marshal(changes)
	}
	return &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: model.AuditEntityRecord,
		EntityID:   rec.ID,
		Changes:    raw,
		CreatedAt:  s.now(),
	}
}

func rejectionReason(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrForbidden:
		return "forbidden"
	case apperrors.ErrIllegalTransition:
		return "illegal_transition"
	case apperrors.ErrIncompleteRecord:
		return "incomplete_record"
	case apperrors.ErrUnknownRole:
		return "unknown_role"
	default:
		return "other"
	}
}

func (s *Service) event(eventType string, rec *model.ClinicalRecord, actor model.Actor, from, to model.RecordStatus) *model.OutboxEvent {
	payload, _ := json.Marshal(model.RecordEventPayload{
		RecordID:   rec.ID,
		RecordType: rec.Type,
		PatientID:  rec.PatientID,
		OrderedBy:  rec.OrderedBy,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   to,
		OccurredAt: s.now(),
	})

	now := s.now()
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
