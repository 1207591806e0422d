package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewsite/notifications/internal/notifications/domain"
)

type recordingNotificationMailer struct {
	sentTo        string
	criticalTo    string
	criticalName  string
	criticalCalls int
}

func (m *recordingNotificationMailer) Send(_ context.Context, to string, _ domain.Notification) error {
	m.sentTo = to
	return nil
}

func (m *recordingNotificationMailer) SendCritical(_ context.Context, to, name string, _ domain.Notification) error {
	m.criticalTo = to
	m.criticalName = name
	m.criticalCalls++
	return nil
}

type senderDirectory struct {
	email   string
	name    string
	nameErr error
}

func (d senderDirectory) EmailAddress(_ context.Context, _ string) (string, error) {
	return d.email, nil
}

func (d senderDirectory) Name(_ context.Context, _ string) (string, error) {
	if d.nameErr != nil {
		return "", d.nameErr
	}
	return d.name, nil
}

func senderTestNotification(t *testing.T, priority domain.Priority) domain.Notification {
	t.Helper()
	notificationType := domain.TypeSystemNotification
	if priority == domain.PriorityCritical {
		notificationType = domain.TypeCriticalIncident
	}
	notification, err := domain.NewNotification(domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     notificationType,
		Category: domain.CategorySystem,
		Priority: priority,
		Content:  domain.Content{Title: "Gas leak at sector 4"},
	}, time.Date(2026, 8, 13, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	return notification
}

func TestEmailSenderRoutesCriticalWithName(t *testing.T) {
	t.Parallel()

	mailer := &recordingNotificationMailer{}
	sender := emailSender{
		mailer:    mailer,
		directory: senderDirectory{email: "user-1@example.com", name: "Ana"},
	}

	if err := sender.Send(context.Background(), senderTestNotification(t, domain.PriorityCritical)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mailer.criticalCalls != 1 {
		t.Fatalf("critical calls = %d, want 1", mailer.criticalCalls)
	}
	if mailer.criticalTo != "user-1@example.com" || mailer.criticalName != "Ana" {
		t.Fatalf("critical send = (%q, %q), want directory address and name", mailer.criticalTo, mailer.criticalName)
	}
	if mailer.sentTo != "" {
		t.Fatalf("plain send used for a critical notification: %q", mailer.sentTo)
	}
}

func TestEmailSenderRoutesNormalThroughPlainSend(t *testing.T) {
	t.Parallel()

	mailer := &recordingNotificationMailer{}
	sender := emailSender{
		mailer:    mailer,
		directory: senderDirectory{email: "user-1@example.com", name: "Ana"},
	}

	if err := sender.Send(context.Background(), senderTestNotification(t, domain.PriorityNormal)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mailer.sentTo != "user-1@example.com" {
		t.Fatalf("plain send to = %q, want directory address", mailer.sentTo)
	}
	if mailer.criticalCalls != 0 {
		t.Fatalf("critical calls = %d, want 0", mailer.criticalCalls)
	}
}

func TestEmailSenderSurvivesNameLookupFailure(t *testing.T) {
	t.Parallel()

	mailer := &recordingNotificationMailer{}
	sender := emailSender{
		mailer:    mailer,
		directory: senderDirectory{email: "user-1@example.com", nameErr: errors.New("directory offline")},
	}

	if err := sender.Send(context.Background(), senderTestNotification(t, domain.PriorityCritical)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mailer.criticalCalls != 1 || mailer.criticalName != "" {
		t.Fatalf("critical send = (%d, %q), want one call with a blank name", mailer.criticalCalls, mailer.criticalName)
	}
}
