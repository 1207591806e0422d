// Package delivery drives the per-channel delivery state machine.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/storage"
	"github.com/crewsite/notifications/internal/platform/timeouts"
)

// ErrSenderMissing is returned when no sender is registered for a channel.
var ErrSenderMissing = errors.New("delivery: no sender registered for channel")

// Sender performs one channel delivery attempt.
type Sender interface {
	Send(ctx context.Context, notification domain.Notification) error
}

// Orchestrator records delivery rows and runs channel attempts. Each
// (notification, channel) pair advances independently. A failed channel
// never blocks the others.
type Orchestrator struct {
	deliveries  storage.DeliveryStore
	preferences storage.PreferenceStore
	senders     map[domain.Channel]Sender
	logger      *log.Logger
	now         func() time.Time
}

// NewOrchestrator builds an orchestrator. A nil now falls back to
// time.Now.
func NewOrchestrator(deliveries storage.DeliveryStore, preferences storage.PreferenceStore, senders map[domain.Channel]Sender, logger *log.Logger, now func() time.Time) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		deliveries:  deliveries,
		preferences: preferences,
		senders:     senders,
		logger:      logger,
		now:         now,
	}
}

// CanDeliver reports whether the recipient's preferences allow the
// channel for this notification. Critical notifications bypass
// preferences entirely.
func (o *Orchestrator) CanDeliver(ctx context.Context, notification domain.Notification, channel domain.Channel) (bool, error) {
	if notification.IsCritical() {
		return true, nil
	}
	if channel == domain.ChannelEmail && notification.ShouldSendEmailImmediate() {
		return true, nil
	}

	preference, err := o.preferences.GetPreference(ctx, notification.UserID, notification.Category)
	if errors.Is(err, storage.ErrNotFound) {
		preference = domain.DefaultPreference(notification.UserID, notification.Category)
	} else if err != nil {
		return false, fmt.Errorf("load preference: %w", err)
	}

	return preference.ChannelEnabled(channel) && preference.Allows(notification.Priority), nil
}

// Deliver runs one delivery attempt per requested channel and records
// the outcome for each. Channels skipped by preference get no delivery
// row. The returned slice holds the recorded rows in channel order.
func (o *Orchestrator) Deliver(ctx context.Context, notification domain.Notification, channels []domain.Channel) ([]domain.Delivery, error) {
	recorded := make([]domain.Delivery, 0, len(channels))
	var firstErr error

	for _, channel := range channels {
		allowed, err := o.CanDeliver(ctx, notification, channel)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !allowed {
			continue
		}

		row, err := o.attempt(ctx, notification, channel)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err == nil {
			recorded = append(recorded, row)
		}
	}
	return recorded, firstErr
}

// attempt runs a single send and persists the resulting state. Send
// failures are recorded, not returned; only storage failures bubble up.
func (o *Orchestrator) attempt(ctx context.Context, notification domain.Notification, channel domain.Channel) (domain.Delivery, error) {
	existing, err := o.deliveries.GetDelivery(ctx, notification.ID, channel)
	if err == nil && existing.Status == domain.DeliverySent {
		return existing, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return domain.Delivery{}, fmt.Errorf("load %s delivery for notification %d: %w", channel, notification.ID, err)
	}

	row := domain.NewDelivery(notification.ID, channel, o.now().UTC())
	if err == nil {
		// A re-run pair continues from its recorded attempts.
		row = existing
	}

	sendErr := o.send(ctx, notification, channel)
	if sendErr == nil {
		row.MarkSent(o.now().UTC())
	} else {
		row.MarkFailed(o.now().UTC(), sendErr.Error())
		o.logSendFailure(ctx, notification, channel, row.AttemptCount, sendErr)
	}

	saved, err := o.deliveries.UpsertDelivery(ctx, row)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("record %s delivery for notification %d: %w", channel, notification.ID, err)
	}
	return saved, nil
}

func (o *Orchestrator) send(ctx context.Context, notification domain.Notification, channel domain.Channel) error {
	sender, ok := o.senders[channel]
	if !ok || sender == nil {
		return fmt.Errorf("%w: %s", ErrSenderMissing, channel)
	}

	sendCtx, cancel := context.WithTimeout(ctx, timeouts.ChannelSend)
	defer cancel()
	return sender.Send(sendCtx, notification)
}

// RetryInput identifies one claimed retry attempt.
type RetryInput struct {
	Notification domain.Notification
	Delivery     domain.Delivery
}

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Claimed   int
	Sent      int
	Failed    int
	Abandoned int
}

// NotificationLoader loads the notification behind a delivery row.
type NotificationLoader interface {
	GetNotification(ctx context.Context, id int64) (domain.Notification, error)
}

// SweepRetries claims due retryable deliveries and re-runs their sends.
// A delivery that exhausts its attempts stays failed permanently.
func (o *Orchestrator) SweepRetries(ctx context.Context, loader NotificationLoader, limit int) (SweepResult, error) {
	result := SweepResult{}

	rows, err := o.deliveries.ListRetryable(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("list retryable deliveries: %w", err)
	}

	now := o.now().UTC()
	for _, row := range rows {
		if !row.ShouldRetryNow(now) {
			continue
		}
		// Leave rows for channels this process cannot send to another
		// sweeper, without spending one of their attempts.
		if _, ok := o.senders[row.Channel]; !ok {
			continue
		}

		claimed, err := o.deliveries.MarkDeliveryRetrying(ctx, row.NotificationID, row.Channel, now)
		if errors.Is(err, storage.ErrNotFound) {
			// Another sweeper claimed it or the row reached a terminal state.
			continue
		}
		if err != nil {
			return result, fmt.Errorf("claim retry for notification %d channel %s: %w", row.NotificationID, row.Channel, err)
		}
		result.Claimed++

		notification, err := loader.GetNotification(ctx, claimed.NotificationID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return result, fmt.Errorf("load notification %d: %w", claimed.NotificationID, err)
		}

		sendErr := o.send(ctx, notification, claimed.Channel)
		if sendErr == nil {
			claimed.MarkSent(o.now().UTC())
			result.Sent++
		} else {
			// The claim already counted this attempt.
			claimed.Status = domain.DeliveryFailed
			claimed.ErrorMessage = sendErr.Error()
			result.Failed++
			if !claimed.CanRetry() {
				result.Abandoned++
			}
			o.logSendFailure(ctx, notification, claimed.Channel, claimed.AttemptCount, sendErr)
		}

		if _, err := o.deliveries.UpsertDelivery(ctx, claimed); err != nil {
			return result, fmt.Errorf("record retry for notification %d channel %s: %w", claimed.NotificationID, claimed.Channel, err)
		}
	}
	return result, nil
}

func (o *Orchestrator) logSendFailure(ctx context.Context, notification domain.Notification, channel domain.Channel, attempt int, err error) {
	traceID := ""
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}
	if traceID != "" {
		o.logger.Printf("delivery failed notification=%d channel=%s attempt=%d trace=%s err=%v", notification.ID, channel, attempt, traceID, err)
		return
	}
	o.logger.Printf("delivery failed notification=%d channel=%s attempt=%d err=%v", notification.ID, channel, attempt, err)
}
