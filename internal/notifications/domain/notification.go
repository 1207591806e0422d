// Package domain holds the notification aggregate, the per-channel delivery
// state machine, and preference gating rules. It owns no I/O; persistence and
// channel side effects live behind the storage and delivery packages.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a notification record was not found.
	ErrNotFound = errors.New("notification not found")
	// ErrInvalidValue indicates a rejected enum token.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUserIDRequired indicates recipient identity is required.
	ErrUserIDRequired = errors.New("recipient user id is required")
	// ErrTitleRequired indicates notification content needs a title.
	ErrTitleRequired = errors.New("notification title is required")
)

// DefaultRetention is the age past which read notifications become deletable.
const DefaultRetention = 30 * 24 * time.Hour

// Content is the immutable human-facing payload of one notification.
type Content struct {
	Title       string
	Body        string
	ActionURL   string
	ActionLabel string
	Icon        string
}

// Notification is one message delivered to exactly one user. Identity is
// assigned by the store at first insert; zero means not yet persisted.
type Notification struct {
	ID       int64
	UserID   string
	Type     Type
	Category Category
	Priority Priority
	Content  Content
	Scope    Scope

	// TargetRole records the role the recipient held at creation time.
	TargetRole string

	RelatedProjectID  string
	RelatedEntityID   string
	RelatedEntityType string

	// Metadata is advisory only; delivery logic never depends on it.
	Metadata map[string]string

	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// NewNotificationInput carries the creation-time facts of a notification.
type NewNotificationInput struct {
	UserID            string
	Type              Type
	Category          Category
	Priority          Priority
	Content           Content
	TargetRole        string
	Scope             Scope
	RelatedProjectID  string
	RelatedEntityID   string
	RelatedEntityType string
	Metadata          map[string]string
}

// NewNotification builds a validated unread notification. UserID, type,
// category, priority, and content are immutable after this point.
func NewNotification(input NewNotificationInput, now time.Time) (Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Notification{}, ErrUserIDRequired
	}
	if !input.Type.Valid() {
		return Notification{}, fmt.Errorf("%w: notification type %q", ErrInvalidValue, input.Type)
	}
	if err := ValidateEnum(input.Category, input.Priority); err != nil {
		return Notification{}, err
	}
	if strings.TrimSpace(input.Content.Title) == "" {
		return Notification{}, ErrTitleRequired
	}

	scope := input.Scope
	if scope == "" {
		scope = ScopeUser
		if strings.TrimSpace(input.RelatedProjectID) != "" {
			scope = ScopeProject
		}
	}

	return Notification{
		UserID:            userID,
		Type:              input.Type,
		Category:          input.Category,
		Priority:          input.Priority,
		Content:           input.Content,
		Scope:             scope,
		TargetRole:        strings.TrimSpace(input.TargetRole),
		RelatedProjectID:  strings.TrimSpace(input.RelatedProjectID),
		RelatedEntityID:   strings.TrimSpace(input.RelatedEntityID),
		RelatedEntityType: strings.TrimSpace(input.RelatedEntityType),
		Metadata:          input.Metadata,
		CreatedAt:         now.UTC(),
	}, nil
}

// MarkAsRead transitions the notification to read. Idempotent: a second call
// leaves ReadAt untouched.
func (n *Notification) MarkAsRead(now time.Time) {
	if n.IsRead {
		return
	}
	readAt := now.UTC()
	n.IsRead = true
	n.ReadAt = &readAt
}

// IsCritical reports whether the notification sits on the escalation path.
func (n Notification) IsCritical() bool {
	return n.Priority.AtLeast(PriorityCritical)
}

// IsHighPriority reports whether the notification is high urgency or above.
func (n Notification) IsHighPriority() bool {
	return n.Priority.AtLeast(PriorityHigh)
}

// ShouldSendEmailImmediate reports whether an email attempt belongs in the
// initial delivery set rather than waiting for a digest.
func (n Notification) ShouldSendEmailImmediate() bool {
	return n.IsCritical() || n.Type.RequiresImmediateEmail()
}

// CanBeDeleted reports whether the age-based purge may remove this
// notification: read, and older than the retention window.
func (n Notification) CanBeDeleted(now time.Time, retention time.Duration) bool {
	if !n.IsRead {
		return false
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return now.UTC().Sub(n.CreatedAt) > retention
}
