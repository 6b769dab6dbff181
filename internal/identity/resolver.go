package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheCleanup = 15 * time.Minute
)

// Resolver maps patient and staff ids to display identities for report
// rendering. Display names change rarely, so lookups are cached; capability
// decisions are never cached here or anywhere else. A failed lookup degrades
// to an empty identity (the report builder renders placeholders), it never
// aborts the report.
type Resolver struct {
	repo   repository.IdentityRepository
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewResolver(repo repository.IdentityRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		cache:  cache.New(defaultCacheTTL, defaultCacheCleanup),
		logger: logger,
	}
}

// Patient resolves a patient display identity.
func (r *Resolver) Patient(ctx context.Context, id uuid.UUID) model.Identity {
	return r.resolve(ctx, "patient:"+id.String(), id, r.repo.GetPatientIdentity)
}

// Staff resolves a staff display identity. A nil id resolves to the empty
// identity, used for unassigned records.
func (r *Resolver) Staff(ctx context.Context, id uuid.UUID) model.Identity {
	return r.resolve(ctx, "staff:"+id.String(), id, r.repo.GetStaffIdentity)
}

// ForRecord resolves every identity a record report references.
func (r *Resolver) ForRecord(ctx context.Context, rec *model.ClinicalRecord) model.RecordIdentities {
	ids := model.RecordIdentities{
		Patient:   r.Patient(ctx, rec.PatientID),
		OrderedBy: r.Staff(ctx, rec.OrderedBy),
	}
	if rec.AssignedTo != nil {
		ids.AssignedTo = r.Staff(ctx, *rec.AssignedTo)
	}
	return ids
}

func (r *Resolver) resolve(ctx context.Context, key string, id uuid.UUID, lookup func(context.Context, uuid.UUID) (*model.Identity, error)) model.Identity {
	if id == uuid.Nil {
		return model.Identity{}
	}

	if cached, ok := r.cache.Get(key); ok {
		return cached.(model.Identity)
	}

	identity, err := lookup(ctx, id)
	if err != nil {
		r.logger.Warn().Err(err).Str("id", id.String()).Msg("identity lookup failed, degrading to placeholder")
		return model.Identity{}
	}

	r.cache.Set(key, *identity, cache.DefaultExpiration)
	return *identity
}
