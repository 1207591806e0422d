package domain

import (
	"fmt"
	"strings"
)

// Type identifies one semantic event kind behind a notification.
type Type string

const (
	// TypeMaterialAdded signals new material registered on a project.
	TypeMaterialAdded Type = "material.added"
	// TypeMaterialLowStock signals material stock under its threshold.
	TypeMaterialLowStock Type = "material.low_stock"
	// TypeMachineryAssigned signals machinery assigned to a project.
	TypeMachineryAssigned Type = "machinery.assigned"
	// TypeMachineryStatusChanged signals a machinery status transition.
	TypeMachineryStatusChanged Type = "machinery.status_changed"
	// TypeMachineryMaintenanceDue signals machinery maintenance coming due.
	TypeMachineryMaintenanceDue Type = "machinery.maintenance_due"
	// TypePersonnelAssigned signals personnel assigned to a project.
	TypePersonnelAssigned Type = "personnel.assigned"
	// TypeProjectStatusChanged signals a project status transition.
	TypeProjectStatusChanged Type = "project.status_changed"
	// TypeCriticalIncident signals an incident requiring escalation.
	TypeCriticalIncident Type = "incident.critical"
	// TypeSystemNotification is the generic system message kind.
	TypeSystemNotification Type = "system.notification"
)

// NormalizeType normalizes a producer-provided type token.
func NormalizeType(raw string) Type {
	return Type(strings.ToLower(strings.TrimSpace(raw)))
}

// Valid reports whether the type is one of the known event kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeMaterialAdded, TypeMaterialLowStock, TypeMachineryAssigned,
		TypeMachineryStatusChanged, TypeMachineryMaintenanceDue,
		TypePersonnelAssigned, TypeProjectStatusChanged,
		TypeCriticalIncident, TypeSystemNotification:
		return true
	default:
		return false
	}
}

// RequiresImmediateEmail reports whether the kind declares email delivery by
// default, independent of priority.
func (t Type) RequiresImmediateEmail() bool {
	switch t {
	case TypeCriticalIncident, TypeMachineryMaintenanceDue:
		return true
	default:
		return false
	}
}

// Category is the coarse grouping used to key user delivery preferences.
type Category string

const (
	// CategoryMaterials groups material stock notifications.
	CategoryMaterials Category = "materials"
	// CategoryMachinery groups machinery notifications.
	CategoryMachinery Category = "machinery"
	// CategoryPersonnel groups personnel notifications.
	CategoryPersonnel Category = "personnel"
	// CategoryProjects groups project lifecycle notifications.
	CategoryProjects Category = "projects"
	// CategorySystem groups system and escalation notifications.
	CategorySystem Category = "system"
)

// Categories returns every known category, in stable order.
func Categories() []Category {
	return []Category{
		CategoryMaterials,
		CategoryMachinery,
		CategoryPersonnel,
		CategoryProjects,
		CategorySystem,
	}
}

// NormalizeCategory normalizes a producer-provided category token.
func NormalizeCategory(raw string) Category {
	return Category(strings.ToLower(strings.TrimSpace(raw)))
}

// Valid reports whether the category is one of the known groupings.
func (c Category) Valid() bool {
	switch c {
	case CategoryMaterials, CategoryMachinery, CategoryPersonnel, CategoryProjects, CategorySystem:
		return true
	default:
		return false
	}
}

// Priority is an ordered urgency level. Comparisons go through Level, never
// through the string value.
type Priority string

const (
	// PriorityLow is informational traffic.
	PriorityLow Priority = "low"
	// PriorityNormal is the default urgency.
	PriorityNormal Priority = "normal"
	// PriorityHigh flags time-sensitive traffic.
	PriorityHigh Priority = "high"
	// PriorityCritical flags traffic on the forced escalation path.
	PriorityCritical Priority = "critical"
)

// NormalizePriority normalizes a producer-provided priority token.
func NormalizePriority(raw string) Priority {
	return Priority(strings.ToLower(strings.TrimSpace(raw)))
}

// Level returns the numeric ordering of the priority. Unknown values rank
// below PriorityLow.
func (p Priority) Level() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the priority is one of the ordered levels.
func (p Priority) Valid() bool {
	return p.Level() > 0
}

// AtLeast reports whether the priority meets the given floor.
func (p Priority) AtLeast(floor Priority) bool {
	return p.Level() >= floor.Level()
}

// Scope records whether a notification was raised for a user directly or
// through project membership. Informational only; it never changes delivery.
type Scope string

const (
	// ScopeUser marks a directly targeted notification.
	ScopeUser Scope = "user"
	// ScopeProject marks a notification raised through project fan-out.
	ScopeProject Scope = "project"
)

// Channel identifies one delivery medium.
type Channel string

const (
	// ChannelInApp is the persisted inbox channel.
	ChannelInApp Channel = "in_app"
	// ChannelWebSocket is the realtime push channel.
	ChannelWebSocket Channel = "websocket"
	// ChannelEmail is the transactional email channel.
	ChannelEmail Channel = "email"
)

// Channels returns every delivery channel, in stable order.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelWebSocket, ChannelEmail}
}

// Valid reports whether the channel is a known delivery medium.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelWebSocket, ChannelEmail:
		return true
	default:
		return false
	}
}

// ValidateEnum rejects unknown category or priority tokens before any store
// write. Used by preference updates.
func ValidateEnum(category Category, priority Priority) error {
	if !category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidValue, category)
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidValue, priority)
	}
	return nil
}
