package app

import (
	"context"
	"fmt"

	"github.com/crewsite/notifications/internal/notifications/delivery"
	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/email"
	"github.com/crewsite/notifications/internal/notifications/push"
	"github.com/crewsite/notifications/internal/notifications/service"
)

// inAppSender completes immediately: the stored notification row is
// itself the in-app artifact, so there is nothing to transmit.
type inAppSender struct{}

func (inAppSender) Send(_ context.Context, _ domain.Notification) error {
	return nil
}

// hubSender pushes the notification to the recipient's open sockets.
// An offline recipient is a failed attempt; the sweep retries it while
// the retry budget lasts.
type hubSender struct {
	hub *push.Hub
}

func (s hubSender) Send(ctx context.Context, notification domain.Notification) error {
	return s.hub.SendNotification(ctx, notification.UserID, notification)
}

// notificationMailer is the slice of the SMTP mailer the email sender
// needs: one plain send and one critical escalation send.
type notificationMailer interface {
	Send(ctx context.Context, to string, notification domain.Notification) error
	SendCritical(ctx context.Context, to, name string, notification domain.Notification) error
}

// emailSender resolves the recipient's address and hands the message to
// the SMTP mailer. Critical notifications go out as escalation mail
// addressed to the recipient by name.
type emailSender struct {
	mailer    notificationMailer
	directory service.EmailDirectory
}

// InAppSender returns the sender for the in-app channel.
func InAppSender() delivery.Sender {
	return inAppSender{}
}

// EmailSender returns a sender that emails notifications through the
// provided mailer, resolving addresses through the directory.
func EmailSender(mailer *email.Mailer, directory service.EmailDirectory) delivery.Sender {
	return emailSender{mailer: mailer, directory: directory}
}

func (s emailSender) Send(ctx context.Context, notification domain.Notification) error {
	if s.directory == nil {
		return fmt.Errorf("email delivery needs a user directory")
	}
	address, err := s.directory.EmailAddress(ctx, notification.UserID)
	if err != nil {
		return fmt.Errorf("resolve email for %s: %w", notification.UserID, err)
	}
	if notification.IsCritical() {
		// The greeting name is best-effort; the address is not.
		name, err := s.directory.Name(ctx, notification.UserID)
		if err != nil {
			name = ""
		}
		return s.mailer.SendCritical(ctx, address, name, notification)
	}
	return s.mailer.Send(ctx, address, notification)
}
