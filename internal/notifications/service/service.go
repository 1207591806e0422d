// Package service exposes the notification command and query use-cases.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crewsite/notifications/internal/notifications/delivery"
	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/storage"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("notification store is not configured")
	// ErrNotFound indicates the notification is missing or owned by another user.
	ErrNotFound = errors.New("notification not found")
	// ErrUserIDRequired indicates recipient identity is required.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrMailerNotConfigured indicates digest email requires a mailer.
	ErrMailerNotConfigured = errors.New("mailer is not configured")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Pusher is the realtime event surface the service notifies best-effort.
type Pusher interface {
	SendUnreadCount(ctx context.Context, userID string, count int) error
	SendReadEvent(ctx context.Context, userID string, notificationIDs []int64) error
}

// DigestMailer sends one summary email for a batch of unread notifications.
type DigestMailer interface {
	SendDigest(ctx context.Context, to, name string, notifications []domain.Notification, asOf time.Time) error
}

// EmailDirectory resolves a user id into a deliverable address and a
// display name.
type EmailDirectory interface {
	EmailAddress(ctx context.Context, userID string) (string, error)
	Name(ctx context.Context, userID string) (string, error)
}

// Store is the full persistence surface the service depends on.
type Store interface {
	storage.NotificationStore
	storage.DeliveryStore
	storage.PreferenceStore
}

// Service orchestrates notification lifecycle behavior: creation with
// channel fan-in, inbox reads, preference management, and retention.
type Service struct {
	store        Store
	orchestrator *delivery.Orchestrator
	pusher       Pusher
	mailer       DigestMailer
	directory    EmailDirectory
	logger       *log.Logger
	clock        func() time.Time
}

// Options carries optional service collaborators.
type Options struct {
	Pusher    Pusher
	Mailer    DigestMailer
	Directory EmailDirectory
	Logger    *log.Logger
	Clock     func() time.Time
}

// NewService constructs notification use-cases.
func NewService(store Store, orchestrator *delivery.Orchestrator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:        store,
		orchestrator: orchestrator,
		pusher:       opts.Pusher,
		mailer:       opts.Mailer,
		directory:    opts.Directory,
		logger:       logger,
		clock:        clock,
	}
}

// Create persists one notification and runs its initial channel
// deliveries. Persistence is the one reliable write; channel sends are
// recorded per pair and never fail the create.
func (s *Service) Create(ctx context.Context, input domain.NewNotificationInput) (domain.Notification, error) {
	if s == nil || s.store == nil {
		return domain.Notification{}, ErrStoreNotConfigured
	}

	notification, err := domain.NewNotification(input, s.nowUTC())
	if err != nil {
		return domain.Notification{}, err
	}
	notification, err = s.store.InsertNotification(ctx, notification)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	if s.orchestrator != nil {
		channels := []domain.Channel{domain.ChannelInApp, domain.ChannelWebSocket}
		if notification.ShouldSendEmailImmediate() {
			channels = append(channels, domain.ChannelEmail)
		}
		if _, err := s.orchestrator.Deliver(ctx, notification, channels); err != nil {
			s.logger.Printf("deliver notification %d: %v", notification.ID, err)
		}
	}
	s.pushUnreadCount(ctx, notification.UserID)

	return notification, nil
}

// Get loads one notification owned by userID.
func (s *Service) Get(ctx context.Context, id int64, userID string) (domain.Notification, error) {
	if s == nil || s.store == nil {
		return domain.Notification{}, ErrStoreNotConfigured
	}
	notification, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Notification{}, ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, err
	}
	// Ownership is checked here so a foreign id is indistinguishable
	// from a missing one.
	if notification.UserID != strings.TrimSpace(userID) {
		return domain.Notification{}, ErrNotFound
	}
	return notification, nil
}

// List pages through one user's inbox newest first.
func (s *Service) List(ctx context.Context, input storage.ListInput) ([]domain.Notification, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return nil, ErrUserIDRequired
	}
	switch {
	case input.PageSize <= 0:
		input.PageSize = defaultPageSize
	case input.PageSize > maxPageSize:
		input.PageSize = maxPageSize
	}
	if input.Page <= 0 {
		input.Page = 1
	}
	return s.store.ListNotifications(ctx, input)
}

// Summary returns the unread totals backing the inbox badge.
func (s *Service) Summary(ctx context.Context, userID string) (storage.Summary, error) {
	if s == nil || s.store == nil {
		return storage.Summary{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Summary{}, ErrUserIDRequired
	}
	return s.store.Summarize(ctx, userID)
}

// MarkAsRead acknowledges one notification for its owner. Other open
// sockets learn about the acknowledgement best-effort.
func (s *Service) MarkAsRead(ctx context.Context, id int64, userID string) (domain.Notification, error) {
	if s == nil || s.store == nil {
		return domain.Notification{}, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Notification{}, ErrUserIDRequired
	}

	notification, err := s.store.MarkRead(ctx, id, userID, s.nowUTC())
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Notification{}, ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, err
	}

	s.pushReadEvent(ctx, userID, []int64{id})
	s.pushUnreadCount(ctx, userID)
	return notification, nil
}

// BulkMarkAsRead acknowledges many notifications at once, skipping ids
// the user does not own. Returns how many rows changed.
func (s *Service) BulkMarkAsRead(ctx context.Context, ids []int64, userID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := s.store.MarkManyRead(ctx, ids, userID, s.nowUTC())
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.pushReadEvent(ctx, userID, ids)
		s.pushUnreadCount(ctx, userID)
	}
	return changed, nil
}

// CleanOld purges read notifications older than the retention window.
func (s *Service) CleanOld(ctx context.Context, userID string, retention time.Duration) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	if retention <= 0 {
		retention = domain.DefaultRetention
	}
	cutoff := s.nowUTC().Add(-retention)
	return s.store.DeleteReadOlderThan(ctx, userID, cutoff)
}

// GetPreferences returns the user's preference per category, filling
// defaults for categories without a stored row.
func (s *Service) GetPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	stored, err := s.store.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[domain.Category]domain.Preference, len(stored))
	for _, preference := range stored {
		byCategory[preference.Category] = preference
	}

	preferences := make([]domain.Preference, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		if preference, ok := byCategory[category]; ok {
			preferences = append(preferences, preference)
			continue
		}
		preferences = append(preferences, domain.DefaultPreference(userID, category))
	}
	return preferences, nil
}

// UpdatePreference validates and stores one preference row.
func (s *Service) UpdatePreference(ctx context.Context, preference domain.Preference) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if strings.TrimSpace(preference.UserID) == "" {
		return ErrUserIDRequired
	}
	if err := domain.ValidateEnum(preference.Category, preference.MinimumPriority); err != nil {
		return err
	}
	return s.store.UpsertPreference(ctx, preference)
}

// EnsureDefaultPreferences stores a default row for every category the
// user has no preference for yet.
func (s *Service) EnsureDefaultPreferences(ctx context.Context, userID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}

	for _, category := range domain.Categories() {
		_, err := s.store.GetPreference(ctx, userID, category)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := s.store.UpsertPreference(ctx, domain.DefaultPreference(userID, category)); err != nil {
			return err
		}
	}
	return nil
}

// ResetPreferences drops every stored preference, restoring defaults.
func (s *Service) ResetPreferences(ctx context.Context, userID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}
	return s.store.DeletePreferences(ctx, userID)
}

// SendUnreadDigest emails one summary of the user's unread inbox.
func (s *Service) SendUnreadDigest(ctx context.Context, userID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if s.mailer == nil || s.directory == nil {
		return ErrMailerNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}

	unread := false
	notifications, err := s.store.ListNotifications(ctx, storage.ListInput{
		UserID:   userID,
		PageSize: maxPageSize,
		Filter:   storage.ListFilter{IsRead: &unread},
	})
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		return nil
	}

	address, err := s.directory.EmailAddress(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve email for %s: %w", userID, err)
	}
	name, err := s.directory.Name(ctx, userID)
	if err != nil {
		s.logger.Printf("resolve name for %s: %v", userID, err)
		name = ""
	}
	return s.mailer.SendDigest(ctx, address, name, notifications, s.nowUTC())
}

// DeliveryStats reports delivery rows by lifecycle state.
func (s *Service) DeliveryStats(ctx context.Context) (storage.DeliveryStats, error) {
	if s == nil || s.store == nil {
		return storage.DeliveryStats{}, ErrStoreNotConfigured
	}
	return s.store.Stats(ctx)
}

func (s *Service) pushUnreadCount(ctx context.Context, userID string) {
	if s.pusher == nil {
		return
	}
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Printf("count unread for %s: %v", userID, err)
		return
	}
	if err := s.pusher.SendUnreadCount(ctx, userID, count); err != nil {
		s.logger.Printf("push unread count for %s: %v", userID, err)
	}
}

func (s *Service) pushReadEvent(ctx context.Context, userID string, ids []int64) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.SendReadEvent(ctx, userID, ids); err != nil {
		s.logger.Printf("push read event for %s: %v", userID, err)
	}
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
