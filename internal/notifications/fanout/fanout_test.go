package fanout

import (
	"context"
	"errors"
	"log"
	"testing"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/storage"
)

type fakeCreator struct {
	created []domain.NewNotificationInput
	failFor map[string]error
	nextID  int64
}

func (c *fakeCreator) Create(_ context.Context, input domain.NewNotificationInput) (domain.Notification, error) {
	if err := c.failFor[input.UserID]; err != nil {
		return domain.Notification{}, err
	}
	c.created = append(c.created, input)
	c.nextID++
	return domain.Notification{
		ID:               c.nextID,
		UserID:           input.UserID,
		Type:             input.Type,
		Category:         input.Category,
		Priority:         input.Priority,
		Content:          input.Content,
		RelatedProjectID: input.RelatedProjectID,
	}, nil
}

type fakeUserDirectory struct {
	roles       map[string]string
	byRole      map[string][]string
	roleErr     error
	usersErr    error
	emails      map[string]string
	names       map[string]string
	emailFailed error
}

func (d fakeUserDirectory) EmailAddress(_ context.Context, userID string) (string, error) {
	if d.emailFailed != nil {
		return "", d.emailFailed
	}
	return d.emails[userID], nil
}

func (d fakeUserDirectory) Name(_ context.Context, userID string) (string, error) {
	return d.names[userID], nil
}

func (d fakeUserDirectory) Role(_ context.Context, userID string) (string, error) {
	if d.roleErr != nil {
		return "", d.roleErr
	}
	return d.roles[userID], nil
}

func (d fakeUserDirectory) UsersWithRole(_ context.Context, role string) ([]string, error) {
	if d.usersErr != nil {
		return nil, d.usersErr
	}
	return d.byRole[role], nil
}

type fakeProjectDirectory struct {
	teams map[string]ProjectTeam
	err   error
}

func (d fakeProjectDirectory) Team(_ context.Context, projectID string) (ProjectTeam, error) {
	if d.err != nil {
		return ProjectTeam{}, d.err
	}
	team, ok := d.teams[projectID]
	if !ok {
		return ProjectTeam{}, errors.New("unknown project")
	}
	return team, nil
}

type fakePreferences struct {
	prefs map[string]domain.Preference
}

func (s fakePreferences) GetPreference(_ context.Context, userID string, category domain.Category) (domain.Preference, error) {
	pref, ok := s.prefs[userID+"/"+string(category)]
	if !ok {
		return domain.Preference{}, storage.ErrNotFound
	}
	return pref, nil
}

func (s fakePreferences) UpsertPreference(_ context.Context, _ domain.Preference) error { return nil }
func (s fakePreferences) ListPreferences(_ context.Context, _ string) ([]domain.Preference, error) {
	return nil, nil
}
func (s fakePreferences) DeletePreferences(_ context.Context, _ string) error { return nil }

func materialEvent() Event {
	return Event{
		Type:     domain.TypeMaterialLowStock,
		Category: domain.CategoryMaterials,
		Priority: domain.PriorityHigh,
		Title:    "Rebar running low",
		Body:     "Below threshold at site A.",
	}
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(fanoutLogWriter{t}, "test: ", 0)
}

func TestNotifyUserResolvesRole(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	users := fakeUserDirectory{roles: map[string]string{"user-1": "manager"}}
	notifier := NewNotifier(creator, users, nil, nil, testLogger(t))

	notification, err := notifier.NotifyUser(context.Background(), "user-1", materialEvent())
	if err != nil {
		t.Fatalf("notify user: %v", err)
	}
	if notification.UserID != "user-1" {
		t.Fatalf("user id = %q, want user-1", notification.UserID)
	}
	if len(creator.created) != 1 || creator.created[0].TargetRole != "manager" {
		t.Fatalf("created = %+v, want resolved manager role", creator.created)
	}
}

func TestNotifyUserSurvivesRoleLookupFailure(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	users := fakeUserDirectory{roleErr: errors.New("directory offline")}
	notifier := NewNotifier(creator, users, nil, nil, testLogger(t))

	if _, err := notifier.NotifyUser(context.Background(), "user-1", materialEvent()); err != nil {
		t.Fatalf("notify user: %v", err)
	}
	if len(creator.created) != 1 || creator.created[0].TargetRole != "" {
		t.Fatalf("created = %+v, want creation without a role", creator.created)
	}
}

func TestNotifyProjectReachesManagerAndSupervisor(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	projects := fakeProjectDirectory{teams: map[string]ProjectTeam{
		"proj-1": {ManagerID: "user-m", SupervisorID: "user-s"},
	}}
	notifier := NewNotifier(creator, fakeUserDirectory{}, projects, nil, testLogger(t))

	notifications, err := notifier.NotifyProject(context.Background(), "proj-1", materialEvent())
	if err != nil {
		t.Fatalf("notify project: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifications))
	}
	for _, notification := range notifications {
		if notification.RelatedProjectID != "proj-1" {
			t.Fatalf("related project = %q, want proj-1", notification.RelatedProjectID)
		}
	}
}

func TestNotifyProjectDeduplicatesSharedLead(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	projects := fakeProjectDirectory{teams: map[string]ProjectTeam{
		"proj-1": {ManagerID: "user-m", SupervisorID: "user-m"},
	}}
	notifier := NewNotifier(creator, fakeUserDirectory{}, projects, nil, testLogger(t))

	notifications, err := notifier.NotifyProject(context.Background(), "proj-1", materialEvent())
	if err != nil {
		t.Fatalf("notify project: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want 1 for a shared lead", len(notifications))
	}
}

func TestNotifyProjectPartialFailureKeepsOtherRecipients(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("insert failed")
	creator := &fakeCreator{failFor: map[string]error{"user-m": wantErr}}
	projects := fakeProjectDirectory{teams: map[string]ProjectTeam{
		"proj-1": {ManagerID: "user-m", SupervisorID: "user-s"},
	}}
	notifier := NewNotifier(creator, fakeUserDirectory{}, projects, nil, testLogger(t))

	notifications, err := notifier.NotifyProject(context.Background(), "proj-1", materialEvent())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected first recipient error, got %v", err)
	}
	if len(notifications) != 1 || notifications[0].UserID != "user-s" {
		t.Fatalf("notifications = %+v, want supervisor only", notifications)
	}
}

func TestNotifyProjectWithoutTeamFails(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	projects := fakeProjectDirectory{teams: map[string]ProjectTeam{"proj-1": {}}}
	notifier := NewNotifier(creator, fakeUserDirectory{}, projects, nil, testLogger(t))

	if _, err := notifier.NotifyProject(context.Background(), "proj-1", materialEvent()); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if _, err := notifier.NotifyProject(context.Background(), "  ", materialEvent()); !errors.Is(err, ErrProjectIDRequired) {
		t.Fatalf("expected ErrProjectIDRequired, got %v", err)
	}
}

func TestNotifyRoleFansOutToEveryHolder(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	users := fakeUserDirectory{byRole: map[string][]string{
		"admin": {"user-1", "user-2", "user-1"},
	}}
	notifier := NewNotifier(creator, users, nil, nil, testLogger(t))

	notifications, err := notifier.NotifyRole(context.Background(), "admin", materialEvent())
	if err != nil {
		t.Fatalf("notify role: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("notifications = %d, want 2 deduplicated admins", len(notifications))
	}
}

func TestNotifyCriticalForcesEscalationShape(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	notifier := NewNotifier(creator, fakeUserDirectory{}, nil, nil, testLogger(t))

	notification, err := notifier.NotifyCritical(context.Background(), "user-1", "Gas leak", "Evacuate sector 4.", "proj-1", "https://example.com/incident")
	if err != nil {
		t.Fatalf("notify critical: %v", err)
	}
	if notification.Type != domain.TypeCriticalIncident {
		t.Fatalf("type = %q, want %q", notification.Type, domain.TypeCriticalIncident)
	}
	if notification.Priority != domain.PriorityCritical {
		t.Fatalf("priority = %q, want %q", notification.Priority, domain.PriorityCritical)
	}
	if notification.Category != domain.CategorySystem {
		t.Fatalf("category = %q, want %q", notification.Category, domain.CategorySystem)
	}
	if notification.RelatedProjectID != "proj-1" {
		t.Fatalf("related project = %q, want proj-1", notification.RelatedProjectID)
	}
}

func TestShouldReceiveHonorsPreferenceGate(t *testing.T) {
	t.Parallel()

	prefs := fakePreferences{prefs: map[string]domain.Preference{
		"user-1/materials": {
			UserID:          "user-1",
			Category:        domain.CategoryMaterials,
			InAppEnabled:    true,
			EmailEnabled:    false,
			MinimumPriority: domain.PriorityHigh,
		},
		"user-2/materials": {
			UserID:          "user-2",
			Category:        domain.CategoryMaterials,
			InAppEnabled:    false,
			EmailEnabled:    false,
			MinimumPriority: domain.PriorityLow,
		},
	}}
	notifier := NewNotifier(&fakeCreator{}, fakeUserDirectory{}, nil, prefs, testLogger(t))

	got, err := notifier.ShouldReceive(context.Background(), "user-1", domain.CategoryMaterials, domain.PriorityHigh)
	if err != nil || !got {
		t.Fatalf("high priority above floor = (%v, %v), want (true, nil)", got, err)
	}
	got, err = notifier.ShouldReceive(context.Background(), "user-1", domain.CategoryMaterials, domain.PriorityNormal)
	if err != nil || got {
		t.Fatalf("normal priority below floor = (%v, %v), want (false, nil)", got, err)
	}
	got, err = notifier.ShouldReceive(context.Background(), "user-2", domain.CategoryMaterials, domain.PriorityHigh)
	if err != nil || got {
		t.Fatalf("all channels disabled = (%v, %v), want (false, nil)", got, err)
	}
	// Missing row falls back to defaults: in-app on, minimum normal.
	got, err = notifier.ShouldReceive(context.Background(), "user-3", domain.CategoryMaterials, domain.PriorityNormal)
	if err != nil || !got {
		t.Fatalf("default preference = (%v, %v), want (true, nil)", got, err)
	}
	got, err = notifier.ShouldReceive(context.Background(), "user-2", domain.CategoryMaterials, domain.PriorityCritical)
	if err != nil || !got {
		t.Fatalf("critical bypass = (%v, %v), want (true, nil)", got, err)
	}
}

type fanoutLogWriter struct {
	t *testing.T
}

func (w fanoutLogWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
