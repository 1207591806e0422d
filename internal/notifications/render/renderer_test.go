package render

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/crewsite/notifications/internal/notifications/domain"
)

func testNotification(t *testing.T, input domain.NewNotificationInput) domain.Notification {
	t.Helper()
	notification, err := domain.NewNotification(input, time.Date(2026, 8, 13, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}
	return notification
}

func TestRenderPrefersAuthorContent(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.material_added.title": "Material added",
		"notification.material_added.body":  "New material was registered on your project.",
	}}
	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypeMaterialAdded,
		Category: domain.CategoryMaterials,
		Priority: domain.PriorityNormal,
		Content:  domain.Content{Title: "Cement delivered", Body: "20 bags arrived at the north gate."},
	})

	out := Render(loc, Input{Notification: notification, Channel: domain.ChannelInApp})

	if out.Title != "Cement delivered" {
		t.Fatalf("title = %q, want author title", out.Title)
	}
	if out.BodyText != "20 bags arrived at the north gate." {
		t.Fatalf("body = %q, want author body", out.BodyText)
	}
}

func TestRenderFillsMissingBodyFromTypedCopy(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.material_low_stock.title": "Low stock",
		"notification.material_low_stock.body":  "A material on your project is below its stock threshold.",
	}}
	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypeMaterialLowStock,
		Category: domain.CategoryMaterials,
		Priority: domain.PriorityHigh,
		Content:  domain.Content{Title: "Rebar running low"},
	})

	out := Render(loc, Input{Notification: notification, Channel: domain.ChannelInApp})

	if out.Title != "Rebar running low" {
		t.Fatalf("title = %q, want author title", out.Title)
	}
	if out.BodyText != "A material on your project is below its stock threshold." {
		t.Fatalf("body = %q, want typed body", out.BodyText)
	}
}

func TestRenderEmailSubjectCarriesCriticalPrefix(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{
		"notification.critical_incident.title":       "Critical incident",
		"notification.critical_incident.body":        "A critical incident was reported on your project.",
		"notification.email_subject.critical_prefix": "[CRITICAL]",
		"notification.generic.email_subject":         "CrewSite notification",
	}}
	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypeCriticalIncident,
		Category: domain.CategorySystem,
		Priority: domain.PriorityCritical,
		Content:  domain.Content{Title: "Scaffold collapse reported"},
	})

	out := Render(loc, Input{Notification: notification, Channel: domain.ChannelEmail})

	if out.EmailSubject != "[CRITICAL] Scaffold collapse reported" {
		t.Fatalf("email subject = %q, want prefixed subject", out.EmailSubject)
	}
}

func TestRenderInAppLeavesEmailSubjectEmpty(t *testing.T) {
	t.Parallel()

	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypeSystemNotification,
		Category: domain.CategorySystem,
		Priority: domain.PriorityNormal,
		Content:  domain.Content{Title: "Maintenance window"},
	})

	out := Render(nil, Input{Notification: notification, Channel: domain.ChannelInApp})

	if out.EmailSubject != "" {
		t.Fatalf("email subject = %q, want empty for in-app render", out.EmailSubject)
	}
}

func TestRenderWithNilLocalizerReturnsHumanReadableDefaults(t *testing.T) {
	t.Parallel()

	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypeMachineryAssigned,
		Category: domain.CategoryMachinery,
		Priority: domain.PriorityNormal,
		Content:  domain.Content{Title: "Excavator assigned"},
	})

	out := Render(nil, Input{Notification: notification, Channel: domain.ChannelEmail})

	if out.Title != "Excavator assigned" {
		t.Fatalf("title = %q, want author title", out.Title)
	}
	if out.EmailSubject != "Excavator assigned" {
		t.Fatalf("email subject = %q, want title reuse", out.EmailSubject)
	}
}

func TestRenderWithRealPrinterUsesRegisteredCatalog(t *testing.T) {
	t.Parallel()

	printer := message.NewPrinter(language.AmericanEnglish)
	notification := testNotification(t, domain.NewNotificationInput{
		UserID:   "user-1",
		Type:     domain.TypePersonnelAssigned,
		Category: domain.CategoryPersonnel,
		Priority: domain.PriorityNormal,
		Content:  domain.Content{Title: "placeholder"},
	})
	notification.Content = domain.Content{}

	out := Render(printer, Input{Notification: notification, Channel: domain.ChannelInApp})

	if out.Title != "Personnel assigned" {
		t.Fatalf("title = %q, want catalog title", out.Title)
	}
	if out.BodyText != "A team member was assigned to your project." {
		t.Fatalf("body = %q, want catalog body", out.BodyText)
	}
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	asString, ok := key.(string)
	if !ok {
		return ""
	}
	template := f.values[asString]
	if template == "" {
		return asString
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}
