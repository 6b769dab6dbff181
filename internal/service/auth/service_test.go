package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/clinic-api/internal/model"
	auditService "github.com/careops/clinic-api/internal/service/audit"
	pkgauth "github.com/careops/clinic-api/pkg/auth"
	apperrors "github.com/careops/clinic-api/pkg/errors"
	"github.com/careops/clinic-api/pkg/security"
)

type fakeStaffRepository struct {
	byEmail map[string]*model.Staff
	byID    map[uuid.UUID]*model.Staff
}

func newFakeStaffRepository() *fakeStaffRepository {
	return &fakeStaffRepository{
		byEmail: make(map[string]*model.Staff),
		byID:    make(map[uuid.UUID]*model.Staff),
	}
}

// Create stores the staff row exactly as given. It never fills in
// missing fields, so tests catch callers that forget to stamp them.
func (f *fakeStaffRepository) Create(_ context.Context, staff *model.Staff) error {
	cp := *staff
	f.byEmail[staff.Email] = &cp
	f.byID[staff.ID] = &cp
	return nil
}

func (f *fakeStaffRepository) Get(_ context.Context, id uuid.UUID) (*model.Staff, error) {
	staff, ok := f.byID[id]
	if !ok {
		return nil, apperrors.NotFound("staff", nil)
	}
	cp := *staff
	return &cp, nil
}

func (f *fakeStaffRepository) GetByEmail(_ context.Context, email string) (*model.Staff, error) {
	staff, ok := f.byEmail[email]
	if !ok {
		return nil, apperrors.NotFound("staff", nil)
	}
	cp := *staff
	return &cp, nil
}

func (f *fakeStaffRepository) Update(_ context.Context, staff *model.Staff) error {
	if _, ok := f.byID[staff.ID]; !ok {
		return apperrors.NotFound("staff", nil)
	}
	cp := *staff
	f.byEmail[staff.Email] = &cp
	f.byID[staff.ID] = &cp
	return nil
}

type fakeAuditRepository struct {
	entries []*model.AuditLog
}

func (f *fakeAuditRepository) Create(_ context.Context, entry *model.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepository) ListByEntity(_ context.Context, _ string, _ uuid.UUID) ([]*model.AuditLog, error) {
	return f.entries, nil
}

func newTestService(t *testing.T) (*Service, *fakeStaffRepository, *fakeAuditRepository) {
	t.Helper()
	staffRepo := newFakeStaffRepository()
	auditRepo := &fakeAuditRepository{}
	svc := NewService(
		staffRepo,
		pkgauth.NewTokenManager("test-secret", time.Hour),
		security.NewBcryptHasher(4),
		auditService.NewService(auditRepo),
	)
	return svc, staffRepo, auditRepo
}

func registerStaff(t *testing.T, svc *Service, role model.Role) *model.Staff {
	t.Helper()
	staff := &model.Staff{
		Email: string(role) + "@clinic.test",
		Name:  "Test " + string(role),
		Role:  role,
	}
	require.NoError(t, svc.Register(context.Background(), staff, "correct-horse"))
	return staff
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	svc, _, auditRepo := newTestService(t)
	staff := registerStaff(t, svc, model.RoleDoctor)

	resp, err := svc.Login(context.Background(), staff.Email, "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, model.RoleDoctor, resp.Actor.Role)
	assert.Equal(t, staff.ID, resp.Actor.ID)

	actor, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, actor.Role)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, model.AuditActionLogin, auditRepo.entries[0].Action)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	staff := registerStaff(t, svc, model.RoleNurse)

	_, err := svc.Login(context.Background(), staff.Email, "wrong")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@clinic.test", "whatever")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestLoginLocksAccountAfterRepeatedFailures(t *testing.T) {
	svc, staffRepo, _ := newTestService(t)
	staff := registerStaff(t, svc, model.RolePharmacist)

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(context.Background(), staff.Email, "wrong")
		require.Error(t, err)
	}

	stored, err := staffRepo.GetByEmail(context.Background(), staff.Email)
	require.NoError(t, err)
	assert.Equal(t, model.StaffStatusLocked, stored.Status)

	// The right password is refused while the lockout holds.
	_, err = svc.Login(context.Background(), staff.Email, "correct-horse")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestRegisterStampsIdentityAndTimestamps(t *testing.T) {
	svc, staffRepo, _ := newTestService(t)

	first := registerStaff(t, svc, model.RoleDoctor)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	stored, err := staffRepo.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, first.CreatedAt, stored.CreatedAt)

	// A second account must get its own primary key.
	second := registerStaff(t, svc, model.RoleNurse)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	staff := &model.Staff{
		Email: "billing@clinic.test",
		Name:  "Billing Clerk",
		Role:  model.Role("billing"),
	}
	err := svc.Register(context.Background(), staff, "correct-horse")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnknownRole, apperrors.CodeOf(err))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ValidateToken(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}
