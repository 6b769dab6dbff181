package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/pkg/logger"
	"github.com/careops/clinic-api/pkg/metrics"
)

// Registered once for the whole test binary; promauto collectors cannot be
// registered twice under the same name.
var testMetrics = metrics.NewMetrics("clinic", "workertest")

type fakeOutboxRepository struct {
	pending  []*model.OutboxEvent
	statuses map[uuid.UUID]model.OutboxStatus
	errors   map[uuid.UUID]string
}

func newFakeOutboxRepository(events ...*model.OutboxEvent) *fakeOutboxRepository {
	return &fakeOutboxRepository{
		pending:  events,
		statuses: make(map[uuid.UUID]model.OutboxStatus),
		errors:   make(map[uuid.UUID]string),
	}
}

func (f *fakeOutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	f.pending = append(f.pending, event)
	return nil
}

// ClaimPendingEvents hands out each pending event exactly once, mirroring
// the atomic claim in the store.
func (f *fakeOutboxRepository) ClaimPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	for _, event := range claimed {
		f.statuses[event.ID] = model.OutboxStatusProcessing
	}
	return claimed, nil
}

func (f *fakeOutboxRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	f.statuses[id] = status
	if errorMessage != nil {
		f.errors[id] = *errorMessage
	}
	return nil
}

type fakeBroker struct {
	published map[string]int
	err       error
}

func (f *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	if f.published == nil {
		f.published = make(map[string]int)
	}
	f.published[channel]++
	return f.err
}

func (f *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func outboxEvent(eventType string) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now(),
	}
}

func newTestProcessor(t *testing.T, repo *fakeOutboxRepository, broker *fakeBroker) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard}), testMetrics)
	require.NoError(t, err)
	return p
}

func TestProcessEventsPublishesClaimedBatch(t *testing.T) {
	completed := outboxEvent(model.EventRecordCompleted)
	reverted := outboxEvent(model.EventRecordReverted)
	repo := newFakeOutboxRepository(completed, reverted)
	broker := &fakeBroker{}
	p := newTestProcessor(t, repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, 1, broker.published[model.EventRecordCompleted])
	assert.Equal(t, 1, broker.published[model.EventRecordReverted])
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[completed.ID])
	assert.Equal(t, model.OutboxStatusProcessed, repo.statuses[reverted.ID])
	assert.Empty(t, repo.pending)
}

func TestProcessEventsMarksFailedAfterRetries(t *testing.T) {
	event := outboxEvent(model.EventRecordCompleted)
	repo := newFakeOutboxRepository(event)
	broker := &fakeBroker{err: errors.New("redis down")}
	p := newTestProcessor(t, repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	assert.Equal(t, 2, broker.published[model.EventRecordCompleted])
	assert.Equal(t, model.OutboxStatusFailed, repo.statuses[event.ID])
	assert.Contains(t, repo.errors[event.ID], "redis down")
}

func TestProcessEventsClaimsEachEventOnce(t *testing.T) {
	event := outboxEvent(model.EventRecordUpdated)
	repo := newFakeOutboxRepository(event)
	broker := &fakeBroker{}
	p := newTestProcessor(t, repo, broker)

	require.NoError(t, p.processEvents(context.Background()))
	require.NoError(t, p.processEvents(context.Background()))

	// The second poll finds nothing; the claim made the event invisible
	// to later polls.
	assert.Equal(t, 1, broker.published[model.EventRecordUpdated])
}

func TestNewOutboxProcessorRejectsInvalidConfig(t *testing.T) {
	_, err := NewOutboxProcessor(newFakeOutboxRepository(), &fakeBroker{}, OutboxProcessorConfig{}, nil, nil)
	require.Error(t, err)
}
