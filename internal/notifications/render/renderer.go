package render

import (
	"strings"

	"golang.org/x/text/message"

	"github.com/crewsite/notifications/internal/notifications/domain"
)

const (
	defaultGenericTitle        = "Notification"
	defaultGenericBody         = "You have a new notification."
	defaultGenericEmailSubject = "CrewSite notification"
	defaultCriticalPrefix      = "[CRITICAL]"
)

// Input is one channel render request for a stored notification.
type Input struct {
	Notification domain.Notification
	Channel      domain.Channel
}

// Output is localized, channel-aware copy derived from one notification.
type Output struct {
	Title        string
	BodyText     string
	EmailSubject string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// Render returns localized copy for one notification. Author-provided
// content wins; localized per-type copy fills whatever the author left
// blank, and the generic strings cover unknown types.
func Render(loc Localizer, input Input) Output {
	out := typedOutput(loc, input.Notification)

	if title := strings.TrimSpace(input.Notification.Content.Title); title != "" {
		out.Title = title
	}
	if body := strings.TrimSpace(input.Notification.Content.Body); body != "" {
		out.BodyText = body
	}

	if input.Channel == domain.ChannelEmail {
		out.EmailSubject = emailSubject(loc, input.Notification, out.Title)
	}
	return out
}

func typedOutput(loc Localizer, notification domain.Notification) Output {
	prefix, ok := typeKeyPrefix(notification.Type)
	if !ok {
		return genericOutput(loc)
	}

	title := localize(loc, prefix+".title")
	body := localize(loc, prefix+".body")
	if title == prefix+".title" || body == prefix+".body" {
		return genericOutput(loc)
	}

	return Output{Title: title, BodyText: body}
}

func genericOutput(loc Localizer) Output {
	return Output{
		Title:    localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle),
		BodyText: localizeWithFallback(loc, "notification.generic.body", defaultGenericBody),
	}
}

func emailSubject(loc Localizer, notification domain.Notification, title string) string {
	subject := strings.TrimSpace(title)
	if subject == "" {
		subject = localizeWithFallback(loc, "notification.generic.email_subject", defaultGenericEmailSubject)
	}
	if notification.IsCritical() {
		prefix := localizeWithFallback(loc, "notification.email_subject.critical_prefix", defaultCriticalPrefix)
		subject = prefix + " " + subject
	}
	return subject
}

func typeKeyPrefix(t domain.Type) (string, bool) {
	switch t {
	case domain.TypeMaterialAdded:
		return "notification.material_added", true
	case domain.TypeMaterialLowStock:
		return "notification.material_low_stock", true
	case domain.TypeMachineryAssigned:
		return "notification.machinery_assigned", true
	case domain.TypeMachineryStatusChanged:
		return "notification.machinery_status_changed", true
	case domain.TypeMachineryMaintenanceDue:
		return "notification.machinery_maintenance_due", true
	case domain.TypePersonnelAssigned:
		return "notification.personnel_assigned", true
	case domain.TypeProjectStatusChanged:
		return "notification.project_status_changed", true
	case domain.TypeCriticalIncident:
		return "notification.critical_incident", true
	case domain.TypeSystemNotification:
		return "notification.system", true
	default:
		return "", false
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
