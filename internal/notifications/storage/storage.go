// Package storage defines the persistence boundary for notifications,
// channel deliveries, and user preferences. Implementations translate driver
// errors into the sentinel errors declared here.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/crewsite/notifications/internal/notifications/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// ListFilter narrows a user inbox listing. Nil members mean "no filter".
type ListFilter struct {
	IsRead    *bool
	Category  *domain.Category
	ProjectID *string
}

// ListInput configures one inbox page request.
type ListInput struct {
	UserID   string
	Page     int
	PageSize int
	Filter   ListFilter
}

// Summary aggregates unread counts for one user.
type Summary struct {
	TotalUnread      int
	UnreadByCategory map[domain.Category]int
}

// DeliveryStats counts delivery rows by lifecycle state.
type DeliveryStats struct {
	Pending  int
	Sent     int
	Failed   int
	Retrying int
}

// NotificationStore persists notification rows.
type NotificationStore interface {
	// InsertNotification persists a new row and returns it with the
	// store-assigned identity.
	InsertNotification(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	GetNotification(ctx context.Context, id int64) (domain.Notification, error)
	ListNotifications(ctx context.Context, input ListInput) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Summarize(ctx context.Context, userID string) (Summary, error)
	// MarkRead flips the read flag for one row owned by userID. Returns
	// ErrNotFound when the row is missing or owned by someone else.
	MarkRead(ctx context.Context, id int64, userID string, readAt time.Time) (domain.Notification, error)
	// MarkManyRead flips the read flag for the subset of ids owned by
	// userID and reports how many rows changed. Foreign ids are ignored.
	MarkManyRead(ctx context.Context, ids []int64, userID string, readAt time.Time) (int, error)
	// DeleteReadOlderThan purges read rows created before the cutoff for
	// one user and reports how many rows were removed.
	DeleteReadOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// DeliveryStore persists channel delivery attempt rows, at most one per
// (notification, channel) pair.
type DeliveryStore interface {
	// UpsertDelivery writes the delivery row for its pair, inserting or
	// replacing the single row the uniqueness constraint allows.
	UpsertDelivery(ctx context.Context, delivery domain.Delivery) (domain.Delivery, error)
	GetDelivery(ctx context.Context, notificationID int64, channel domain.Channel) (domain.Delivery, error)
	// ListRetryable returns failed or retrying rows with attempts left,
	// oldest attempt first.
	ListRetryable(ctx context.Context, limit int) ([]domain.Delivery, error)
	// MarkDeliveryRetrying transitions one non-sent row to retrying and
	// bumps its attempt count. Sent rows are never touched; such calls
	// return ErrNotFound.
	MarkDeliveryRetrying(ctx context.Context, notificationID int64, channel domain.Channel, attemptAt time.Time) (domain.Delivery, error)
	Stats(ctx context.Context) (DeliveryStats, error)
}

// PreferenceStore persists per-(user, category) delivery preferences.
type PreferenceStore interface {
	// GetPreference returns ErrNotFound when no row exists; callers apply
	// domain.DefaultPreference in that case.
	GetPreference(ctx context.Context, userID string, category domain.Category) (domain.Preference, error)
	UpsertPreference(ctx context.Context, preference domain.Preference) error
	ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error)
	DeletePreferences(ctx context.Context, userID string) error
}
