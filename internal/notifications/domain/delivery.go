package domain

import (
	"strings"
	"time"
)

// DeliveryState identifies one delivery lifecycle state.
type DeliveryState string

const (
	// DeliveryPending means the channel attempt is queued.
	DeliveryPending DeliveryState = "pending"
	// DeliverySent means the channel delivery completed. Terminal.
	DeliverySent DeliveryState = "sent"
	// DeliveryFailed means the last attempt errored.
	DeliveryFailed DeliveryState = "failed"
	// DeliveryRetrying means a failed attempt was handed back to the sender.
	DeliveryRetrying DeliveryState = "retrying"
)

// MaxDeliveryAttempts caps automatic retries per (notification, channel) pair.
const MaxDeliveryAttempts = 3

// Delivery is the single attempt record for one (notification, channel) pair.
// The store enforces at most one row per pair.
type Delivery struct {
	ID             int64
	NotificationID int64
	Channel        Channel
	Status         DeliveryState
	AttemptCount   int
	LastAttemptAt  *time.Time
	SentAt         *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
}

// NewDelivery builds a pending delivery record for one channel.
func NewDelivery(notificationID int64, channel Channel, now time.Time) Delivery {
	return Delivery{
		NotificationID: notificationID,
		Channel:        channel,
		Status:         DeliveryPending,
		CreatedAt:      now.UTC(),
	}
}

// MarkSent records successful channel delivery. The record is terminal
// afterwards; the error message is cleared.
func (d *Delivery) MarkSent(now time.Time) {
	sentAt := now.UTC()
	d.Status = DeliverySent
	d.SentAt = &sentAt
	d.ErrorMessage = ""
}

// MarkFailed records one failed attempt with its reason.
func (d *Delivery) MarkFailed(now time.Time, reason string) {
	attemptAt := now.UTC()
	d.Status = DeliveryFailed
	d.ErrorMessage = strings.TrimSpace(reason)
	d.LastAttemptAt = &attemptAt
	d.AttemptCount++
}

// MarkRetrying records that the sweep handed the delivery back to its sender.
func (d *Delivery) MarkRetrying(now time.Time) {
	attemptAt := now.UTC()
	d.Status = DeliveryRetrying
	d.LastAttemptAt = &attemptAt
	d.AttemptCount++
}

// CanRetry reports whether another automatic attempt is allowed.
func (d Delivery) CanRetry() bool {
	return d.AttemptCount < MaxDeliveryAttempts && d.Status != DeliverySent
}

// RetryDelay returns the backoff wait required before the next attempt:
// 2^attempts minutes, so 2, 4, 8 minutes after the first, second, and third
// failure.
func (d Delivery) RetryDelay() time.Duration {
	return time.Duration(1<<d.AttemptCount) * time.Minute
}

// ShouldRetryNow reports whether the delivery is retryable and its backoff
// window has elapsed.
func (d Delivery) ShouldRetryNow(now time.Time) bool {
	if !d.CanRetry() {
		return false
	}
	if d.LastAttemptAt == nil {
		return true
	}
	return now.UTC().Sub(*d.LastAttemptAt) >= d.RetryDelay()
}
