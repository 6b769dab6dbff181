package record

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/clinic-api/internal/identity"
	"github.com/careops/clinic-api/internal/lifecycle"
	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/rbac"
	"github.com/careops/clinic-api/internal/repository"
	apperrors "github.com/careops/clinic-api/pkg/errors"
)

// fakeRecordRepository is a map-backed stand-in for the postgres store. It
// honors the conditional-write contract and captures audit entries and
// outbox events for assertions.
type fakeRecordRepository struct {
	records map[uuid.UUID]*model.ClinicalRecord
	audits  []*model.AuditLog
	events  []*model.OutboxEvent
}

var _ repository.RecordRepository = (*fakeRecordRepository)(nil)

func newFakeRecordRepository() *fakeRecordRepository {
	return &fakeRecordRepository{records: make(map[uuid.UUID]*model.ClinicalRecord)}
}

func (f *fakeRecordRepository) CreateWithAudit(_ context.Context, rec *model.ClinicalRecord, entry *model.AuditLog, event *model.OutboxEvent) error {
	clone := *rec
	f.records[rec.ID] = &clone
	if entry != nil {
		f.audits = append(f.audits, entry)
	}
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeRecordRepository) Get(_ context.Context, id uuid.UUID) (*model.ClinicalRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, apperrors.NotFound("clinical record", nil)
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeRecordRepository) UpdateWithAudit(_ context.Context, rec *model.ClinicalRecord, cond model.WriteCondition, entry *model.AuditLog, event *model.OutboxEvent) error {
	stored, ok := f.records[rec.ID]
	if !ok {
		return apperrors.NotFound("clinical record", nil)
	}
	if !cond.ExpectedUpdatedAt.IsZero() && !stored.UpdatedAt.Equal(cond.ExpectedUpdatedAt) {
		return apperrors.Conflict("clinical record")
	}
	clone := *rec
	f.records[rec.ID] = &clone
	if entry != nil {
		f.audits = append(f.audits, entry)
	}
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeRecordRepository) ListByPatient(_ context.Context, patientID uuid.UUID, filter *model.RecordFilter) ([]*model.ClinicalRecord, error) {
	var out []*model.ClinicalRecord
	for _, rec := range f.records {
		if rec.PatientID != patientID {
			continue
		}
		if filter != nil && filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter != nil && filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

type fakeIdentityRepository struct {
	patients map[uuid.UUID]model.Identity
	staff    map[uuid.UUID]model.Identity
}

var _ repository.IdentityRepository = (*fakeIdentityRepository)(nil)

func (f *fakeIdentityRepository) GetPatientIdentity(_ context.Context, id uuid.UUID) (*model.Identity, error) {
	if identity, ok := f.patients[id]; ok {
		return &identity, nil
	}
	return nil, apperrors.NotFound("patient", nil)
}

func (f *fakeIdentityRepository) GetStaffIdentity(_ context.Context, id uuid.UUID) (*model.Identity, error) {
	if identity, ok := f.staff[id]; ok {
		return &identity, nil
	}
	return nil, apperrors.NotFound("staff", nil)
}

type fixture struct {
	svc   *Service
	repo  *fakeRecordRepository
	clock *time.Time
}

func newFixture(t *testing.T, configs ...rbac.TypeConfig) *fixture {
	t.Helper()

	if len(configs) == 0 {
		configs = rbac.DefaultTypeConfigs()
	}
	registry := rbac.NewRegistry(configs...)
	repo := newFakeRecordRepository()
	resolver := identity.NewResolver(&fakeIdentityRepository{
		patients: map[uuid.UUID]model.Identity{},
		staff:    map[uuid.UUID]model.Identity{},
	}, zerolog.Nop())

	svc := NewService(repo, registry, lifecycle.NewMachine(registry), resolver)

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }

	return &fixture{svc: svc, repo: repo, clock: clock}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) seed(t *testing.T, rec *model.ClinicalRecord) *model.ClinicalRecord {
	t.Helper()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = *f.clock
	rec.UpdatedAt = *f.clock
	clone := *rec
	f.repo.records[rec.ID] = &clone
	return rec
}

func seededLabTest(t *testing.T, f *fixture, status model.RecordStatus, payload string) *model.ClinicalRecord {
	t.Helper()
	return f.seed(t, &model.ClinicalRecord{
		Type:      model.RecordTypeLabTest,
		PatientID: uuid.New(),
		OrderedBy: uuid.New(),
		Status:    status,
		Payload:   payload,
	})
}

func staffActor(role model.Role) model.Actor {
	return model.Actor{ID: uuid.New(), Name: "Test " + string(role), Role: role}
}

func TestCreateRecord(t *testing.T) {
	f := newFixture(t)
	doctor := staffActor(model.RoleDoctor)

	view, err := f.svc.Create(context.Background(), doctor, &model.CreateRecordRequest{
		Type:      model.RecordTypeLabTest,
		PatientID: uuid.New().String(),
		Notes:     "fasting sample",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, view.Status)
	assert.Equal(t, doctor.ID, view.OrderedBy)
	assert.Equal(t, model.PayloadAbsent, view.PayloadVisibility)
	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, model.AuditActionCreate, f.repo.audits[0].Action)
	require.Len(t, f.repo.events, 1)
	assert.Equal(t, model.EventRecordCreated, f.repo.events[0].EventType)
}

func TestCreateRecordForbiddenForNonOrderingRoles(t *testing.T) {
	f := newFixture(t)

	for _, role := range []model.Role{model.RoleLabTechnician, model.RolePharmacist, model.RoleNurse, model.RoleReceptionist} {
		_, err := f.svc.Create(context.Background(), staffActor(role), &model.CreateRecordRequest{
			Type:      model.RecordTypeLabTest,
			PatientID: uuid.New().String(),
		})
		require.Error(t, err, "role=%s", role)
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden), "role=%s got %v", role, err)
	}
}

func TestGetUnknownRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), staffActor(model.RoleAdmin), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdatePayloadForbiddenForViewOnlyRole(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusPending, "")

	_, err := f.svc.UpdatePayload(context.Background(), staffActor(model.RoleDoctor), rec.ID, &model.UpdatePayloadRequest{Payload: "forged"}, model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	assert.Contains(t, err.Error(), rbac.CapEditPayload, "rejections must name the missing capability")

	stored, _ := f.repo.Get(context.Background(), rec.ID)
	assert.Empty(t, stored.Payload)
}

func TestCompleteThenFreeze(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusPending, "")
	tech := staffActor(model.RoleLabTechnician)
	created := rec.UpdatedAt

	f.advance(time.Minute)
	view, err := f.svc.Complete(context.Background(), tech, rec.ID, &model.CompleteRequest{Payload: "WBC 6.2k/µL"}, model.WriteCondition{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, view.Status)
	assert.True(t, view.UpdatedAt.After(created), "updated_at advances on completion")

	// the record is now frozen for the technician
	_, err = f.svc.UpdatePayload(context.Background(), tech, rec.ID, &model.UpdatePayloadRequest{Payload: "tampered"}, model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	stored, _ := f.repo.Get(context.Background(), rec.ID)
	assert.Equal(t, "WBC 6.2k/µL", stored.Payload)
}

func TestAdminRevertPreservesPayload(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusCompleted, "WBC 6.2k/µL")

	view, err := f.svc.Revert(context.Background(), staffActor(model.RoleAdmin), rec.ID, model.WriteCondition{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, view.Status)
	assert.Equal(t, "WBC 6.2k/µL", view.Payload)

	require.NotEmpty(t, f.repo.audits)
	assert.Equal(t, model.AuditActionRevert, f.repo.audits[len(f.repo.audits)-1].Action)
	require.NotEmpty(t, f.repo.events)
	assert.Equal(t, model.EventRecordReverted, f.repo.events[len(f.repo.events)-1].EventType)
}

func TestRevertForbiddenForNonAdmins(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusCompleted, "result")

	for _, role := range []model.Role{model.RoleLabTechnician, model.RoleDoctor, model.RoleNurse} {
		_, err := f.svc.Revert(context.Background(), staffActor(role), rec.ID, model.WriteCondition{})
		require.Error(t, err, "role=%s", role)
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

		stored, _ := f.repo.Get(context.Background(), rec.ID)
		assert.Equal(t, model.StatusCompleted, stored.Status, "status unchanged after rejected revert")
	}
}

func TestTransitionToCompletedWithEmptyPayload(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusInProgress, "")

	_, err := f.svc.TransitionStatus(context.Background(), staffActor(model.RoleLabTechnician), rec.ID, model.StatusCompleted, model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompleteRecord))

	stored, _ := f.repo.Get(context.Background(), rec.ID)
	assert.Equal(t, model.StatusInProgress, stored.Status)
}

func TestCompleteRetainsPayloadWriteWhenGuardFails(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusPending, "")

	// empty final payload: the notes write lands, the completion is
	// rejected, and no rollback happens
	_, err := f.svc.Complete(context.Background(), staffActor(model.RoleLabTechnician), rec.ID, &model.CompleteRequest{Payload: "", Notes: "sample drawn 08:15"}, model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrIncompleteRecord))

	stored, _ := f.repo.Get(context.Background(), rec.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, "sample drawn 08:15", stored.Notes, "partial progress is retained")
}

func TestSameStatusTransitionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusInProgress, "partial")
	before := rec.UpdatedAt

	f.advance(time.Hour)
	view, err := f.svc.TransitionStatus(context.Background(), staffActor(model.RoleDoctor), rec.ID, model.StatusInProgress, model.WriteCondition{})
	require.NoError(t, err)
	assert.True(t, view.UpdatedAt.Equal(before), "no-op must not touch updated_at")
	assert.Empty(t, f.repo.audits, "no-op must not be audited as a mutation")
}

func TestConditionalWriteConflict(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusPending, "")
	stale := rec.UpdatedAt.Add(-time.Minute)

	_, err := f.svc.UpdatePayload(context.Background(), staffActor(model.RoleLabTechnician), rec.ID, &model.UpdatePayloadRequest{Payload: "x"}, model.WriteCondition{ExpectedUpdatedAt: stale})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestPayloadRedactionTriState(t *testing.T) {
	f := newFixture(t, rbac.TypeConfig{
		Type:                      model.RecordTypeLabTest,
		AssignedRole:              model.RoleLabTechnician,
		RequiresPayloadToComplete: true,
		PayloadViewRoles:          []model.Role{model.RoleDoctor},
	})

	withResults := seededLabTest(t, f, model.StatusCompleted, "WBC 6.2k/µL")
	empty := seededLabTest(t, f, model.StatusPending, "")

	visible, err := f.svc.Get(context.Background(), staffActor(model.RoleDoctor), withResults.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayloadVisible, visible.PayloadVisibility)
	assert.Equal(t, "WBC 6.2k/µL", visible.Payload)

	restricted, err := f.svc.Get(context.Background(), staffActor(model.RoleReceptionist), withResults.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayloadRestricted, restricted.PayloadVisibility)
	assert.Equal(t, model.RestrictedPayloadMarker, restricted.Payload, "redaction is explicit, never a silent omission")

	absent, err := f.svc.Get(context.Background(), staffActor(model.RoleDoctor), empty.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayloadAbsent, absent.PayloadVisibility)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusPending, "")
	assignee := uuid.New()

	view, err := f.svc.Assign(context.Background(), staffActor(model.RoleLabTechnician), rec.ID, assignee, model.WriteCondition{})
	require.NoError(t, err)
	require.NotNil(t, view.AssignedTo)
	assert.Equal(t, assignee, *view.AssignedTo)
}

func TestAssignRejectedOnCancelledRecord(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusCancelled, "")

	_, err := f.svc.Assign(context.Background(), staffActor(model.RoleAdmin), rec.ID, uuid.New(), model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	assert.Contains(t, err.Error(), "assign")
}

func TestAssignFrozenForNonAdminOnCompleted(t *testing.T) {
	f := newFixture(t)
	rec := seededLabTest(t, f, model.StatusCompleted, "done")

	_, err := f.svc.Assign(context.Background(), staffActor(model.RoleLabTechnician), rec.ID, uuid.New(), model.WriteCondition{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.Assign(context.Background(), staffActor(model.RoleAdmin), rec.ID, uuid.New(), model.WriteCondition{})
	assert.NoError(t, err, "admin may reassign a completed record")
}

func TestMonotonicityExceptAdminRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tech := staffActor(model.RoleLabTechnician)
	rec := seededLabTest(t, f, model.StatusPending, "result")

	// forward only for the technician
	_, err := f.svc.TransitionStatus(ctx, tech, rec.ID, model.StatusCompleted, model.WriteCondition{})
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(ctx, tech, rec.ID, model.StatusPending, model.WriteCondition{})
	require.Error(t, err, "no way back without the revert capability")

	// the one backward edge
	_, err = f.svc.Revert(ctx, staffActor(model.RoleAdmin), rec.ID, model.WriteCondition{})
	require.NoError(t, err)

	stored, _ := f.repo.Get(ctx, rec.ID)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestReportIsDeterministicAndRedacted(t *testing.T) {
	f := newFixture(t, rbac.TypeConfig{
		Type:                      model.RecordTypeLabTest,
		AssignedRole:              model.RoleLabTechnician,
		RequiresPayloadToComplete: true,
		PayloadViewRoles:          []model.Role{model.RoleDoctor},
	})
	rec := seededLabTest(t, f, model.StatusCompleted, "WBC 6.2k/µL")
	receptionist := staffActor(model.RoleReceptionist)

	first, err := f.svc.Report(context.Background(), receptionist, rec.ID)
	require.NoError(t, err)
	second, err := f.svc.Report(context.Background(), receptionist, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second, "fixed clock means byte-identical reports")
	assert.Contains(t, first, model.RestrictedPayloadMarker)
	assert.False(t, strings.Contains(first, "WBC 6.2k/µL"), "restricted payload must not leak into the report")
}

func TestListByPatientRedactsEachRecord(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()
	f.seed(t, &model.ClinicalRecord{Type: model.RecordTypeLabTest, PatientID: patientID, OrderedBy: uuid.New(), Status: model.StatusPending})
	f.seed(t, &model.ClinicalRecord{Type: model.RecordTypePrescription, PatientID: patientID, OrderedBy: uuid.New(), Status: model.StatusCompleted, Payload: "amoxicillin 500mg"})

	views, err := f.svc.ListByPatient(context.Background(), staffActor(model.RoleNurse), patientID, nil)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.NotEmpty(t, v.PayloadVisibility)
	}
}
