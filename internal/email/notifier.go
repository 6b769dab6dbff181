package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/careops/clinic-api/internal/model"
)

// Notifier delivers lifecycle notifications to the clinician who ordered a
// record. Delivery is best effort and runs from the worker, never inline
// with a lifecycle operation.
type Notifier interface {
	SendRecordCompleted(ctx context.Context, to string, recordType model.RecordType, recordID string) error
	SendRecordReverted(ctx context.Context, to string, recordType model.RecordType, recordID string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(cfg SMTPConfig) Notifier {
	return &smtpNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (n *smtpNotifier) SendRecordCompleted(_ context.Context, to string, recordType model.RecordType, recordID string) error {
	subject := fmt.Sprintf("%s %s completed", typeLabel(recordType), recordID)
	body := fmt.Sprintf("The %s you ordered (%s) has been completed and is ready for review.", typeLabel(recordType), recordID)
	return n.send(to, subject, body)
}

func (n *smtpNotifier) SendRecordReverted(_ context.Context, to string, recordType model.RecordType, recordID string) error {
	subject := fmt.Sprintf("%s %s re-opened", typeLabel(recordType), recordID)
	body := fmt.Sprintf("The %s you ordered (%s) has been re-opened by an administrator for correction.", typeLabel(recordType), recordID)
	return n.send(to, subject, body)
}

func (n *smtpNotifier) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func typeLabel(t model.RecordType) string {
	switch t {
	case model.RecordTypeLabTest:
		return "laboratory test"
	case model.RecordTypePrescription:
		return "prescription"
	default:
		return "clinical record"
	}
}
