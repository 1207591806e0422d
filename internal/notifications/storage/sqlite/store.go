// Package sqlite provides SQLite-backed persistence for notifications,
// channel deliveries, and user preferences.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/storage"
	"github.com/crewsite/notifications/internal/notifications/storage/sqlite/migrations"
	"github.com/crewsite/notifications/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the notifications subsystem.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the notifications SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const notificationColumns = `id, user_id, type, category, priority, title, body, action_url, action_label, icon,
scope, target_role, related_project_id, related_entity_id, related_entity_type, metadata_json, is_read, read_at, created_at`

// InsertNotification persists a new notification row and returns it with the
// store-assigned identity.
func (s *Store) InsertNotification(ctx context.Context, notification domain.Notification) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Notification{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return domain.Notification{}, fmt.Errorf("recipient user id is required")
	}
	if notification.CreatedAt.IsZero() {
		return domain.Notification{}, fmt.Errorf("created_at is required")
	}

	metadataJSON, err := encodeMetadata(notification.Metadata)
	if err != nil {
		return domain.Notification{}, err
	}
	var readAt sql.NullInt64
	if notification.ReadAt != nil {
		readAt = sql.NullInt64{Int64: toMillis(*notification.ReadAt), Valid: true}
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (
	user_id, type, category, priority, title, body, action_url, action_label, icon,
	scope, target_role, related_project_id, related_entity_id, related_entity_type,
	metadata_json, is_read, read_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		notification.UserID,
		string(notification.Type),
		string(notification.Category),
		string(notification.Priority),
		notification.Content.Title,
		notification.Content.Body,
		notification.Content.ActionURL,
		notification.Content.ActionLabel,
		notification.Content.Icon,
		string(notification.Scope),
		notification.TargetRole,
		notification.RelatedProjectID,
		notification.RelatedEntityID,
		notification.RelatedEntityType,
		metadataJSON,
		boolToInt(notification.IsRead),
		readAt,
		toMillis(notification.CreatedAt),
	)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification id: %w", err)
	}
	notification.ID = id
	return notification, nil
}

// GetNotification loads one notification row by identity.
func (s *Store) GetNotification(ctx context.Context, id int64) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Notification{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE id = ?
`, id)
	notification, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, storage.ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return notification, nil
}

// ListNotifications lists one user inbox newest-first with optional filters
// and page/size pagination.
func (s *Store) ListNotifications(ctx context.Context, input storage.ListInput) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be greater than zero")
	}

	query := `
SELECT ` + notificationColumns + `
FROM notifications
WHERE user_id = ?`
	args := []any{userID}
	if input.Filter.IsRead != nil {
		query += " AND is_read = ?"
		args = append(args, boolToInt(*input.Filter.IsRead))
	}
	if input.Filter.Category != nil {
		query += " AND category = ?"
		args = append(args, string(*input.Filter.Category))
	}
	if input.Filter.ProjectID != nil {
		query += " AND related_project_id = ?"
		args = append(args, strings.TrimSpace(*input.Filter.ProjectID))
	}
	query += `
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Notification, 0, pageSize)
	for rows.Next() {
		notification, scanErr := scanNotification(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan notification row: %w", scanErr)
		}
		results = append(results, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}
	return results, nil
}

// CountUnread returns the unread row count for one user.
func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	var unreadCount int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM notifications WHERE user_id = ? AND is_read = 0
`, userID).Scan(&unreadCount); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return unreadCount, nil
}

// Summarize returns unread counts by category plus the unread total.
func (s *Store) Summarize(ctx context.Context, userID string) (storage.Summary, error) {
	if err := ctx.Err(); err != nil {
		return storage.Summary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Summary{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Summary{}, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT category, COUNT(1)
FROM notifications
WHERE user_id = ? AND is_read = 0
GROUP BY category
`, userID)
	if err != nil {
		return storage.Summary{}, fmt.Errorf("summarize notifications: %w", err)
	}
	defer rows.Close()

	summary := storage.Summary{UnreadByCategory: make(map[domain.Category]int)}
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return storage.Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.UnreadByCategory[domain.Category(category)] = count
		summary.TotalUnread += count
	}
	if err := rows.Err(); err != nil {
		return storage.Summary{}, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

// MarkRead flips the read flag for one row owned by userID. The first read
// timestamp wins; re-reading never moves read_at.
func (s *Store) MarkRead(ctx context.Context, id int64, userID string, readAt time.Time) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Notification{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Notification{}, fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET is_read = 1, read_at = COALESCE(read_at, ?)
WHERE id = ? AND user_id = ?
`, toMillis(readAt.UTC()), id, userID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Notification{}, storage.ErrNotFound
	}
	return s.GetNotification(ctx, id)
}

// MarkManyRead flips the read flag for the subset of ids owned by userID and
// reports how many rows changed. Ids owned by other users are ignored.
func (s *Store) MarkManyRead(ctx context.Context, ids []int64, userID string, readAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+2)
	args = append(args, toMillis(readAt.UTC()), userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET is_read = 1, read_at = COALESCE(read_at, ?)
WHERE user_id = ? AND is_read = 0 AND id IN (`+placeholders+`)
`, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteReadOlderThan purges read rows created before the cutoff for one user.
func (s *Store) DeleteReadOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM notifications
WHERE user_id = ? AND is_read = 1 AND created_at < ?
`, userID, toMillis(cutoff.UTC()))
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old notifications rows affected: %w", err)
	}
	return int(affected), nil
}

// UpsertDelivery writes the single delivery row its (notification, channel)
// pair allows. A row that already reached sent is never overwritten, which
// keeps concurrent attempts from producing a second successful send.
func (s *Store) UpsertDelivery(ctx context.Context, delivery domain.Delivery) (domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return domain.Delivery{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Delivery{}, fmt.Errorf("storage is not configured")
	}
	if delivery.NotificationID == 0 {
		return domain.Delivery{}, fmt.Errorf("notification id is required")
	}
	if !delivery.Channel.Valid() {
		return domain.Delivery{}, fmt.Errorf("delivery channel %q is unknown", delivery.Channel)
	}
	if delivery.CreatedAt.IsZero() {
		return domain.Delivery{}, fmt.Errorf("created_at is required")
	}

	var lastAttemptAt sql.NullInt64
	if delivery.LastAttemptAt != nil {
		lastAttemptAt = sql.NullInt64{Int64: toMillis(*delivery.LastAttemptAt), Valid: true}
	}
	var sentAt sql.NullInt64
	if delivery.SentAt != nil {
		sentAt = sql.NullInt64{Int64: toMillis(*delivery.SentAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_deliveries (
	notification_id, channel, status, attempt_count, last_attempt_at, sent_at, error_message, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(notification_id, channel) DO UPDATE SET
	status = excluded.status,
	attempt_count = excluded.attempt_count,
	last_attempt_at = excluded.last_attempt_at,
	sent_at = excluded.sent_at,
	error_message = excluded.error_message
WHERE notification_deliveries.status != 'sent'
`,
		delivery.NotificationID,
		string(delivery.Channel),
		string(delivery.Status),
		delivery.AttemptCount,
		lastAttemptAt,
		sentAt,
		delivery.ErrorMessage,
		toMillis(delivery.CreatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return domain.Delivery{}, storage.ErrConflict
		}
		return domain.Delivery{}, fmt.Errorf("upsert delivery: %w", err)
	}
	return s.GetDelivery(ctx, delivery.NotificationID, delivery.Channel)
}

// GetDelivery loads the delivery row for one (notification, channel) pair.
func (s *Store) GetDelivery(ctx context.Context, notificationID int64, channel domain.Channel) (domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return domain.Delivery{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Delivery{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, notification_id, channel, status, attempt_count, last_attempt_at, sent_at, error_message, created_at
FROM notification_deliveries
WHERE notification_id = ? AND channel = ?
`, notificationID, string(channel))
	delivery, err := scanDelivery(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Delivery{}, storage.ErrNotFound
		}
		return domain.Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return delivery, nil
}

// ListRetryable returns failed or retrying rows with attempts left, oldest
// attempt first.
func (s *Store) ListRetryable(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, notification_id, channel, status, attempt_count, last_attempt_at, sent_at, error_message, created_at
FROM notification_deliveries
WHERE status IN (?, ?) AND attempt_count < ?
ORDER BY last_attempt_at ASC, id ASC
LIMIT ?
`, string(domain.DeliveryFailed), string(domain.DeliveryRetrying), domain.MaxDeliveryAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable deliveries: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Delivery, 0, limit)
	for rows.Next() {
		delivery, scanErr := scanDelivery(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan retryable delivery row: %w", scanErr)
		}
		results = append(results, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retryable delivery rows: %w", err)
	}
	return results, nil
}

// MarkDeliveryRetrying transitions one non-sent row to retrying and bumps its
// attempt count. Sent or exhausted rows are left alone.
func (s *Store) MarkDeliveryRetrying(ctx context.Context, notificationID int64, channel domain.Channel, attemptAt time.Time) (domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return domain.Delivery{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Delivery{}, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notification_deliveries
SET status = ?, attempt_count = attempt_count + 1, last_attempt_at = ?
WHERE notification_id = ? AND channel = ? AND status != ? AND attempt_count < ?
`, string(domain.DeliveryRetrying), toMillis(attemptAt.UTC()), notificationID, string(channel),
		string(domain.DeliverySent), domain.MaxDeliveryAttempts)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("mark delivery retrying: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("mark delivery retrying rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Delivery{}, storage.ErrNotFound
	}
	return s.GetDelivery(ctx, notificationID, channel)
}

// Stats counts delivery rows by lifecycle state.
func (s *Store) Stats(ctx context.Context) (storage.DeliveryStats, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeliveryStats{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeliveryStats{}, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT status, COUNT(1) FROM notification_deliveries GROUP BY status
`)
	if err != nil {
		return storage.DeliveryStats{}, fmt.Errorf("delivery stats: %w", err)
	}
	defer rows.Close()

	var stats storage.DeliveryStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return storage.DeliveryStats{}, fmt.Errorf("scan delivery stats row: %w", err)
		}
		switch domain.DeliveryState(status) {
		case domain.DeliveryPending:
			stats.Pending = count
		case domain.DeliverySent:
			stats.Sent = count
		case domain.DeliveryFailed:
			stats.Failed = count
		case domain.DeliveryRetrying:
			stats.Retrying = count
		}
	}
	if err := rows.Err(); err != nil {
		return storage.DeliveryStats{}, fmt.Errorf("iterate delivery stats rows: %w", err)
	}
	return stats, nil
}

// GetPreference loads one (user, category) preference row.
func (s *Store) GetPreference(ctx context.Context, userID string, category domain.Category) (domain.Preference, error) {
	if err := ctx.Err(); err != nil {
		return domain.Preference{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Preference{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Preference{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, category, in_app_enabled, email_enabled, minimum_priority
FROM notification_preferences
WHERE user_id = ? AND category = ?
`, userID, string(category))
	preference, err := scanPreference(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Preference{}, storage.ErrNotFound
		}
		return domain.Preference{}, fmt.Errorf("get preference: %w", err)
	}
	return preference, nil
}

// UpsertPreference writes one (user, category) preference row.
func (s *Store) UpsertPreference(ctx context.Context, preference domain.Preference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID := strings.TrimSpace(preference.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := domain.ValidateEnum(preference.Category, preference.MinimumPriority); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_preferences (user_id, category, in_app_enabled, email_enabled, minimum_priority)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id, category) DO UPDATE SET
	in_app_enabled = excluded.in_app_enabled,
	email_enabled = excluded.email_enabled,
	minimum_priority = excluded.minimum_priority
`,
		userID,
		string(preference.Category),
		boolToInt(preference.InAppEnabled),
		boolToInt(preference.EmailEnabled),
		string(preference.MinimumPriority),
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// ListPreferences lists every preference row for one user.
func (s *Store) ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, category, in_app_enabled, email_enabled, minimum_priority
FROM notification_preferences
WHERE user_id = ?
ORDER BY category ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Preference, 0, len(domain.Categories()))
	for rows.Next() {
		preference, scanErr := scanPreference(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan preference row: %w", scanErr)
		}
		results = append(results, preference)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference rows: %w", err)
	}
	return results, nil
}

// DeletePreferences removes every preference row for one user.
func (s *Store) DeletePreferences(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM notification_preferences WHERE user_id = ?
`, userID); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

type scanner func(dest ...any) error

func scanNotification(scan scanner) (domain.Notification, error) {
	var notification domain.Notification
	var kind, category, priority, scope string
	var metadataJSON string
	var isRead int
	var readAt sql.NullInt64
	var createdAt int64
	if err := scan(
		&notification.ID,
		&notification.UserID,
		&kind,
		&category,
		&priority,
		&notification.Content.Title,
		&notification.Content.Body,
		&notification.Content.ActionURL,
		&notification.Content.ActionLabel,
		&notification.Content.Icon,
		&scope,
		&notification.TargetRole,
		&notification.RelatedProjectID,
		&notification.RelatedEntityID,
		&notification.RelatedEntityType,
		&metadataJSON,
		&isRead,
		&readAt,
		&createdAt,
	); err != nil {
		return domain.Notification{}, err
	}
	notification.Type = domain.Type(kind)
	notification.Category = domain.Category(category)
	notification.Priority = domain.Priority(priority)
	notification.Scope = domain.Scope(scope)
	notification.IsRead = isRead != 0
	if readAt.Valid {
		value := fromMillis(readAt.Int64)
		notification.ReadAt = &value
	}
	notification.CreatedAt = fromMillis(createdAt)
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Notification{}, err
	}
	notification.Metadata = metadata
	return notification, nil
}

func scanDelivery(scan scanner) (domain.Delivery, error) {
	var delivery domain.Delivery
	var channel, status string
	var lastAttemptAt sql.NullInt64
	var sentAt sql.NullInt64
	var createdAt int64
	if err := scan(
		&delivery.ID,
		&delivery.NotificationID,
		&channel,
		&status,
		&delivery.AttemptCount,
		&lastAttemptAt,
		&sentAt,
		&delivery.ErrorMessage,
		&createdAt,
	); err != nil {
		return domain.Delivery{}, err
	}
	delivery.Channel = domain.Channel(channel)
	delivery.Status = domain.DeliveryState(status)
	if lastAttemptAt.Valid {
		value := fromMillis(lastAttemptAt.Int64)
		delivery.LastAttemptAt = &value
	}
	if sentAt.Valid {
		value := fromMillis(sentAt.Int64)
		delivery.SentAt = &value
	}
	delivery.CreatedAt = fromMillis(createdAt)
	return delivery, nil
}

func scanPreference(scan scanner) (domain.Preference, error) {
	var preference domain.Preference
	var category, minimumPriority string
	var inAppEnabled, emailEnabled int
	if err := scan(
		&preference.UserID,
		&category,
		&inAppEnabled,
		&emailEnabled,
		&minimumPriority,
	); err != nil {
		return domain.Preference{}, err
	}
	preference.Category = domain.Category(category)
	preference.InAppEnabled = inAppEnabled != 0
	preference.EmailEnabled = emailEnabled != 0
	preference.MinimumPriority = domain.Priority(minimumPriority)
	return preference, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(encoded), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadata, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "foreign key constraint failed")
}
