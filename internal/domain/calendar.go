package domain

// DefaultCalendarTitle is the title of the calendar and reminder list owned by the app
const DefaultCalendarTitle = "EventMe"

// EntityType selects the store domain a calendar, permission or record belongs to
type EntityType string

const (
	EntityEvent    EntityType = "event"
	EntityReminder EntityType = "reminder"
)

// Emoji returns emoji for the entity type
func (t EntityType) Emoji() string {
	switch t {
	case EntityEvent:
		return "📅"
	case EntityReminder:
		return "🔔"
	default:
		return "❓"
	}
}

// Plural returns the human name for a collection of this type
func (t EntityType) Plural() string {
	switch t {
	case EntityEvent:
		return "events"
	case EntityReminder:
		return "reminders"
	default:
		return string(t)
	}
}

// Calendar is an event calendar or a reminder list in the store
type Calendar struct {
	ID    string
	Title string
	Type  EntityType
}

// AuthorizationStatus is the owner's decision about store access for one entity type
type AuthorizationStatus string

const (
	StatusNotDetermined AuthorizationStatus = "not_determined"
	StatusDenied        AuthorizationStatus = "denied"
	StatusAuthorized    AuthorizationStatus = "authorized"
)

// IsDecided returns true once the owner has answered the access prompt
func (s AuthorizationStatus) IsDecided() bool {
	return s == StatusDenied || s == StatusAuthorized
}
