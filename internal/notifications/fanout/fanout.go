// Package fanout resolves "who should receive this" and creates one
// notification per resolved recipient.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/storage"
)

var (
	// ErrDirectoryNotConfigured indicates a required directory is missing.
	ErrDirectoryNotConfigured = errors.New("fanout: directory is not configured")
	// ErrProjectIDRequired indicates project fan-out needs a project id.
	ErrProjectIDRequired = errors.New("fanout: project id is required")
	// ErrRoleRequired indicates role fan-out needs a role name.
	ErrRoleRequired = errors.New("fanout: role is required")
	// ErrNoRecipients indicates fan-out resolved an empty recipient set.
	ErrNoRecipients = errors.New("fanout: no recipients resolved")
)

// Event is one semantic occurrence to notify about. The facade turns it
// into per-recipient notification inputs.
type Event struct {
	Type       domain.Type
	Category   domain.Category
	Priority   domain.Priority
	Title      string
	Body       string
	ActionURL  string
	ProjectID  string
	EntityID   string
	EntityType string
	Metadata   map[string]string
}

// ProjectTeam identifies the people responsible for one project.
type ProjectTeam struct {
	ManagerID    string
	SupervisorID string
}

// UserDirectory resolves user identity details from the owning module.
type UserDirectory interface {
	EmailAddress(ctx context.Context, userID string) (string, error)
	Name(ctx context.Context, userID string) (string, error)
	Role(ctx context.Context, userID string) (string, error)
	UsersWithRole(ctx context.Context, role string) ([]string, error)
}

// ProjectDirectory resolves project team membership.
type ProjectDirectory interface {
	Team(ctx context.Context, projectID string) (ProjectTeam, error)
}

// Creator persists notifications and runs their channel deliveries.
type Creator interface {
	Create(ctx context.Context, input domain.NewNotificationInput) (domain.Notification, error)
}

// Notifier fans semantic events out to users, project teams, and roles.
type Notifier struct {
	creator     Creator
	users       UserDirectory
	projects    ProjectDirectory
	preferences storage.PreferenceStore
	logger      *log.Logger
}

// NewNotifier builds the fan-out facade.
func NewNotifier(creator Creator, users UserDirectory, projects ProjectDirectory, preferences storage.PreferenceStore, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		creator:     creator,
		users:       users,
		projects:    projects,
		preferences: preferences,
		logger:      logger,
	}
}

// NotifyUser creates one notification for one recipient, resolving the
// recipient's role for the record.
func (n *Notifier) NotifyUser(ctx context.Context, userID string, event Event) (domain.Notification, error) {
	input := n.inputFor(userID, event)
	if n.users != nil {
		role, err := n.users.Role(ctx, userID)
		if err != nil {
			n.logger.Printf("resolve role for %s: %v", userID, err)
		} else {
			input.TargetRole = role
		}
	}
	return n.creator.Create(ctx, input)
}

// NotifyProject notifies the project's manager and supervisor. The two
// creates are independent: a failure for one recipient does not undo or
// block the other. The first error is reported after all recipients ran.
func (n *Notifier) NotifyProject(ctx context.Context, projectID string, event Event) ([]domain.Notification, error) {
	if n.projects == nil {
		return nil, ErrDirectoryNotConfigured
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}

	team, err := n.projects.Team(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve team for project %s: %w", projectID, err)
	}

	event.ProjectID = projectID
	return n.notifyAll(ctx, dedupe([]string{team.ManagerID, team.SupervisorID}), event)
}

// NotifyRole notifies every user currently holding the role.
func (n *Notifier) NotifyRole(ctx context.Context, role string, event Event) ([]domain.Notification, error) {
	if n.users == nil {
		return nil, ErrDirectoryNotConfigured
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, ErrRoleRequired
	}

	userIDs, err := n.users.UsersWithRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("resolve users with role %s: %w", role, err)
	}
	return n.notifyAll(ctx, dedupe(userIDs), event)
}

// NotifyCritical runs the escalation path: a critical system
// notification whose delivery bypasses the recipient's preferences,
// including a forced immediate email.
func (n *Notifier) NotifyCritical(ctx context.Context, userID, title, body, projectID, actionURL string) (domain.Notification, error) {
	return n.NotifyUser(ctx, userID, Event{
		Type:      domain.TypeCriticalIncident,
		Category:  domain.CategorySystem,
		Priority:  domain.PriorityCritical,
		Title:     title,
		Body:      body,
		ProjectID: projectID,
		ActionURL: actionURL,
	})
}

// ShouldReceive reports whether the user's preference admits a
// notification of this category and priority on any enabled channel.
func (n *Notifier) ShouldReceive(ctx context.Context, userID string, category domain.Category, priority domain.Priority) (bool, error) {
	if priority.AtLeast(domain.PriorityCritical) {
		return true, nil
	}
	if n.preferences == nil {
		return true, nil
	}

	preference, err := n.preferences.GetPreference(ctx, userID, category)
	if errors.Is(err, storage.ErrNotFound) {
		preference = domain.DefaultPreference(userID, category)
	} else if err != nil {
		return false, fmt.Errorf("load preference: %w", err)
	}

	if !preference.Allows(priority) {
		return false, nil
	}
	return preference.InAppEnabled || preference.EmailEnabled, nil
}

func (n *Notifier) notifyAll(ctx context.Context, userIDs []string, event Event) ([]domain.Notification, error) {
	if len(userIDs) == 0 {
		return nil, ErrNoRecipients
	}

	notifications := make([]domain.Notification, 0, len(userIDs))
	var firstErr error
	for _, userID := range userIDs {
		notification, err := n.NotifyUser(ctx, userID, event)
		if err != nil {
			n.logger.Printf("notify %s: %v", userID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		notifications = append(notifications, notification)
	}
	return notifications, firstErr
}

func (n *Notifier) inputFor(userID string, event Event) domain.NewNotificationInput {
	return domain.NewNotificationInput{
		UserID:   userID,
		Type:     event.Type,
		Category: event.Category,
		Priority: event.Priority,
		Content: domain.Content{
			Title:     event.Title,
			Body:      event.Body,
			ActionURL: event.ActionURL,
		},
		RelatedProjectID:  event.ProjectID,
		RelatedEntityID:   event.EntityID,
		RelatedEntityType: event.EntityType,
		Metadata:          event.Metadata,
	}
}

func dedupe(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, userID)
	}
	return out
}
