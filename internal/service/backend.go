package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

// ErrCommit marks a failure to persist a change in the store
var ErrCommit = errors.New("store commit failed")

// ErrAccessDenied is returned where silently dropping a change would lose user input
var ErrAccessDenied = errors.New("access to the store is not granted")

// Authorizer answers whether the app may use the store
type Authorizer interface {
	Status(ctx context.Context, typ domain.EntityType) (domain.AuthorizationStatus, error)
	Request(ctx context.Context, typ domain.EntityType) (bool, error)
}

// CalendarBackend lists and creates calendars in the store
type CalendarBackend interface {
	Calendars(ctx context.Context, typ domain.EntityType) ([]domain.Calendar, error)
	CreateCalendar(ctx context.Context, c *domain.Calendar) error
}

// EventBackend is the event half of the store
type EventBackend interface {
	CalendarBackend
	EventsInRange(ctx context.Context, calendarID string, from, to time.Time) ([]*domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	SaveEvent(ctx context.Context, e *domain.Event) error
	RemoveEvent(ctx context.Context, id string) error
}

// ReminderBackend is the reminder half of the store
type ReminderBackend interface {
	CalendarBackend
	Reminders(ctx context.Context, calendarID string) ([]*domain.Reminder, error)
	GetReminder(ctx context.Context, id string) (*domain.Reminder, error)
	SaveReminder(ctx context.Context, r *domain.Reminder) error
	RemoveReminder(ctx context.Context, id string) error
}

// ManagerOptions configures EventManager and ReminderManager
type ManagerOptions struct {
	CalendarTitle string         // Title of the dedicated calendar, "EventMe" if empty
	AutoCreate    bool           // Create the dedicated calendar once access is granted
	Timezone      *time.Location // Zone records are presented in
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.CalendarTitle == "" {
		o.CalendarTitle = domain.DefaultCalendarTitle
	}
	if o.Timezone == nil {
		o.Timezone = time.UTC
	}
	return o
}

// calendarLocator finds the dedicated calendar of one entity type.
// The lookup is repeated on every call so a calendar created later is picked up.
type calendarLocator struct {
	backend    CalendarBackend
	typ        domain.EntityType
	title      string
	autoCreate bool
	mu         sync.Mutex
}

// find returns the dedicated calendar, or nil if the store has none
func (l *calendarLocator) find(ctx context.Context) (*domain.Calendar, error) {
	cals, err := l.backend.Calendars(ctx, l.typ)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	for _, c := range cals {
		if c.Title == l.title {
			cal := c
			return &cal, nil
		}
	}
	return nil, nil
}

// ensure creates the dedicated calendar if auto-create is on and it is missing
func (l *calendarLocator) ensure(ctx context.Context) (*domain.Calendar, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cal, err := l.find(ctx)
	if err != nil || cal != nil || !l.autoCreate {
		return cal, err
	}

	cal = &domain.Calendar{Title: l.title, Type: l.typ}
	if err := l.backend.CreateCalendar(ctx, cal); err != nil {
		return nil, fmt.Errorf("create calendar: %w", err)
	}
	log.Printf("Created %s calendar %q", l.typ, l.title)
	return cal, nil
}

// granted reports whether access is authorized, treating lookup errors as denied
func granted(ctx context.Context, auth Authorizer, typ domain.EntityType) bool {
	status, err := auth.Status(ctx, typ)
	if err != nil {
		log.Printf("Error checking %s access: %v", typ, err)
		return false
	}
	return status == domain.StatusAuthorized
}
