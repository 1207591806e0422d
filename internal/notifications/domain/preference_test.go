package domain

import (
	"errors"
	"testing"
)

func TestDefaultPreferenceGate(t *testing.T) {
	t.Parallel()

	preference := DefaultPreference("user-7", CategoryMaterials)
	if !preference.InAppEnabled {
		t.Fatal("defaults must enable in-app delivery")
	}
	if preference.EmailEnabled {
		t.Fatal("defaults must disable email delivery")
	}
	if preference.MinimumPriority != PriorityNormal {
		t.Fatalf("minimum priority = %q, want %q", preference.MinimumPriority, PriorityNormal)
	}

	if preference.Allows(PriorityLow) {
		t.Fatal("low priority must be gated below the normal floor")
	}
	if !preference.Allows(PriorityNormal) {
		t.Fatal("normal priority must pass the default gate")
	}
	if !preference.Allows(PriorityCritical) {
		t.Fatal("critical priority must pass the default gate")
	}
}

func TestPreferenceWithAllChannelsDisabledAllowsNothing(t *testing.T) {
	t.Parallel()

	preference := Preference{
		UserID:          "user-7",
		Category:        CategoryMachinery,
		InAppEnabled:    false,
		EmailEnabled:    false,
		MinimumPriority: PriorityLow,
	}
	if preference.Allows(PriorityCritical) {
		t.Fatal("a preference with every channel disabled admits nothing")
	}
}

func TestChannelEnabledFollowsSettings(t *testing.T) {
	t.Parallel()

	preference := Preference{
		UserID:          "user-7",
		Category:        CategoryProjects,
		InAppEnabled:    true,
		EmailEnabled:    false,
		MinimumPriority: PriorityLow,
	}
	if !preference.ChannelEnabled(ChannelInApp) {
		t.Fatal("in-app channel must follow the in-app setting")
	}
	if !preference.ChannelEnabled(ChannelWebSocket) {
		t.Fatal("websocket channel must follow the in-app setting")
	}
	if preference.ChannelEnabled(ChannelEmail) {
		t.Fatal("email channel must follow the email setting")
	}
}

func TestValidateEnumRejectsUnknownTokens(t *testing.T) {
	t.Parallel()

	if err := ValidateEnum(CategoryMachinery, PriorityHigh); err != nil {
		t.Fatalf("valid enums rejected: %v", err)
	}
	if err := ValidateEnum(Category("weather"), PriorityHigh); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for category, got %v", err)
	}
	if err := ValidateEnum(CategoryMachinery, Priority("sometime")); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for priority, got %v", err)
	}
}
