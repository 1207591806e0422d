// Package email sends transactional notification mail over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/render"
)

var (
	// ErrNotConfigured is returned when the mailer has no SMTP host.
	ErrNotConfigured = fmt.Errorf("email: mailer is not configured")
	// ErrRecipientRequired is returned when the recipient address is blank.
	ErrRecipientRequired = fmt.Errorf("email: recipient address is required")
)

// Config carries SMTP connection settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Mailer composes and sends notification email.
type Mailer struct {
	config    Config
	localizer render.Localizer

	// sendMail is swappable in tests.
	sendMail func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer builds a mailer. A zero Host leaves the mailer unconfigured
// and every send returns ErrNotConfigured.
func NewMailer(config Config, localizer render.Localizer) *Mailer {
	return &Mailer{
		config:    config,
		localizer: localizer,
		sendMail:  sendMailContext,
	}
}

// Configured reports whether the mailer can reach an SMTP host.
func (m *Mailer) Configured() bool {
	return m != nil && strings.TrimSpace(m.config.Host) != ""
}

// Send delivers one notification to the given address. Critical
// notifications get a subject prefix from the renderer.
func (m *Mailer) Send(ctx context.Context, to string, notification domain.Notification) error {
	out := render.Render(m.localizer, render.Input{
		Notification: notification,
		Channel:      domain.ChannelEmail,
	})

	body := out.BodyText
	if url := strings.TrimSpace(notification.Content.ActionURL); url != "" {
		body = body + "\r\n\r\n" + actionLabel(notification) + ": " + url
	}
	return m.deliver(ctx, to, out.EmailSubject, body)
}

// SendCritical delivers one escalation email addressed to the recipient
// by name, with the related project and action link called out.
func (m *Mailer) SendCritical(ctx context.Context, to, name string, notification domain.Notification) error {
	out := render.Render(m.localizer, render.Input{
		Notification: notification,
		Channel:      domain.ChannelEmail,
	})

	var body strings.Builder
	if name = strings.TrimSpace(name); name != "" {
		fmt.Fprintf(&body, "Hi %s,\r\n\r\n", name)
	}
	body.WriteString(out.BodyText)
	if project := strings.TrimSpace(notification.RelatedProjectID); project != "" {
		fmt.Fprintf(&body, "\r\n\r\nProject: %s", project)
	}
	if url := strings.TrimSpace(notification.Content.ActionURL); url != "" {
		fmt.Fprintf(&body, "\r\n\r\n%s: %s", actionLabel(notification), url)
	}
	return m.deliver(ctx, to, out.EmailSubject, body.String())
}

// SendDigest delivers one summary email listing unread notifications as
// of the given moment.
func (m *Mailer) SendDigest(ctx context.Context, to, name string, notifications []domain.Notification, asOf time.Time) error {
	if len(notifications) == 0 {
		return nil
	}

	var body strings.Builder
	if name = strings.TrimSpace(name); name != "" {
		fmt.Fprintf(&body, "Hi %s,\r\n\r\n", name)
	}
	fmt.Fprintf(&body, "You have %d unread notifications as of %s:\r\n\r\n", len(notifications), asOf.UTC().Format(time.RFC1123))
	for _, notification := range notifications {
		out := render.Render(m.localizer, render.Input{
			Notification: notification,
			Channel:      domain.ChannelInApp,
		})
		fmt.Fprintf(&body, "- [%s] %s\r\n", notification.Priority, out.Title)
	}

	subject := fmt.Sprintf("Unread notifications (%d)", len(notifications))
	return m.deliver(ctx, to, subject, body.String())
}

func (m *Mailer) deliver(ctx context.Context, to, subject, body string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	recipient := strings.TrimSpace(to)
	if recipient == "" {
		return ErrRecipientRequired
	}

	msg := composeMessage(m.config.From, recipient, subject, body)
	addr := net.JoinHostPort(m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	// A stalled SMTP exchange must not outlive the context deadline.
	done := make(chan error, 1)
	go func() {
		done <- m.sendMail(ctx, addr, auth, m.config.From, []string{recipient}, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", recipient, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", recipient, ctx.Err())
	}
}

// sendMailContext mirrors smtp.SendMail with a context-aware dial and a
// connection deadline taken from ctx, so the whole exchange aborts when
// the context expires.
func sendMailContext(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return err
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return err
		}
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(msg); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func actionLabel(notification domain.Notification) string {
	label := strings.TrimSpace(notification.Content.ActionLabel)
	if label == "" {
		label = "Open"
	}
	return label
}

func composeMessage(from, to, subject, body string) []byte {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// sanitizeHeader strips CR/LF so user-authored titles cannot inject
// extra headers.
func sanitizeHeader(value string) string {
	replacer := strings.NewReplacer("\r", " ", "\n", " ")
	return strings.TrimSpace(replacer.Replace(value))
}
