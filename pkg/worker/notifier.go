package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/careops/clinic-api/internal/email"
	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/repository"
	"github.com/careops/clinic-api/pkg/logger"
	"github.com/careops/clinic-api/pkg/messaging"
)

// NotificationConsumer listens for completed and reverted record events and
// emails the clinician who ordered the record. Failures are logged and
// dropped, notification delivery never blocks the event stream.
type NotificationConsumer struct {
	broker   messaging.Broker
	staff    repository.StaffRepository
	notifier email.Notifier
	logger   *logger.Logger
}

func NewNotificationConsumer(
	broker messaging.Broker,
	staff repository.StaffRepository,
	notifier email.Notifier,
	logger *logger.Logger,
) *NotificationConsumer {
	return &NotificationConsumer{
		broker:   broker,
		staff:    staff,
		notifier: notifier,
		logger:   logger,
	}
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	for _, eventType := range []string{model.EventRecordCompleted, model.EventRecordReverted} {
		ch, err := c.broker.Subscribe(ctx, eventType)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
		go c.consume(ctx, eventType, ch)
	}

	c.logger.Info("notification consumer started")
	return nil
}

func (c *NotificationConsumer) consume(ctx context.Context, eventType string, ch <-chan []byte) {
	for raw := range ch {
		if err := c.handle(ctx, eventType, raw); err != nil {
			c.logger.Error(err, "failed to handle event", "event_type", eventType)
		}
	}
}

func (c *NotificationConsumer) handle(ctx context.Context, eventType string, raw []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}

	var payload model.RecordEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}

	staff, err := c.staff.Get(ctx, payload.OrderedBy)
	if err != nil {
		return fmt.Errorf("failed to look up ordering clinician: %w", err)
	}
	if staff.Email == "" {
		return nil
	}

	recordID := payload.RecordID.String()
	switch eventType {
	case model.EventRecordCompleted:
		return c.notifier.SendRecordCompleted(ctx, staff.Email, payload.RecordType, recordID)
	case model.EventRecordReverted:
		return c.notifier.SendRecordReverted(ctx, staff.Email, payload.RecordType, recordID)
	}
	return nil
}
