package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

// EventManager is the access-gated façade over the event store.
// Without access every read yields nothing and every write is a no-op.
type EventManager struct {
	access    Authorizer
	backend   EventBackend
	calendars *calendarLocator
	tz        *time.Location
	now       func() time.Time
}

// NewEventManager creates a new event manager
func NewEventManager(access Authorizer, backend EventBackend, opts ManagerOptions) *EventManager {
	opts = opts.withDefaults()
	return &EventManager{
		access:  access,
		backend: backend,
		calendars: &calendarLocator{
			backend:    backend,
			typ:        domain.EntityEvent,
			title:      opts.CalendarTitle,
			autoCreate: opts.AutoCreate,
		},
		tz:  opts.Timezone,
		now: time.Now,
	}
}

// SetClock replaces the time source
func (m *EventManager) SetClock(now func() time.Time) {
	m.now = now
}

// Now returns the current time in the manager's zone
func (m *EventManager) Now() time.Time {
	return m.now().In(m.tz)
}

// Location returns the zone events are presented in
func (m *EventManager) Location() *time.Location {
	return m.tz
}

// IsAccessGranted reports whether event access is authorized right now
func (m *EventManager) IsAccessGranted(ctx context.Context) bool {
	return granted(ctx, m.access, domain.EntityEvent)
}

// RequestAccess asks for event access if not decided yet and returns the outcome
func (m *EventManager) RequestAccess(ctx context.Context) (bool, error) {
	ok, err := m.access.Request(ctx, domain.EntityEvent)
	if err != nil {
		return false, fmt.Errorf("request event access: %w", err)
	}
	if ok {
		if _, err := m.calendars.ensure(ctx); err != nil {
			log.Printf("Error preparing event calendar: %v", err)
		}
	}
	return ok, nil
}

// Calendar returns the app's event calendar, or nil if access is missing or the store has none
func (m *EventManager) Calendar(ctx context.Context) (*domain.Calendar, error) {
	if !m.IsAccessGranted(ctx) {
		return nil, nil
	}
	return m.calendars.find(ctx)
}

// FetchEvents returns the events of the app's calendar from one month ago to one month ahead
func (m *EventManager) FetchEvents(ctx context.Context) ([]*domain.Event, error) {
	now := m.Now()
	return m.FetchEventsBetween(ctx, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0))
}

// FetchEventsBetween returns the events intersecting [from, to), sorted by start.
// Recurring events are returned as their individual occurrences.
func (m *EventManager) FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	cal, err := m.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	if cal == nil {
		return nil, nil
	}

	raw, err := m.backend.EventsInRange(ctx, cal.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	events := ExpandEvents(raw, from, to, m.tz)
	for _, e := range events {
		e.Start = e.Start.In(m.tz)
		e.End = e.End.In(m.tz)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].Title < events[j].Title
	})
	return events, nil
}

// CreateEvent returns a new unsaved event in the app's calendar,
// or nil if access is missing or the calendar does not exist.
func (m *EventManager) CreateEvent(ctx context.Context) (*domain.Event, error) {
	cal, err := m.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	if cal == nil {
		return nil, nil
	}
	return domain.NewEvent(cal.ID), nil
}

// SaveEvent commits the event. Changes to one occurrence of a recurring
// event detach it from the series; other occurrences keep their values.
func (m *EventManager) SaveEvent(ctx context.Context, e *domain.Event) error {
	if e == nil || !m.IsAccessGranted(ctx) {
		return nil
	}
	if !e.HasChanges() {
		return nil
	}

	if e.IsOccurrence() {
		return m.saveOccurrence(ctx, e)
	}

	if err := m.backend.SaveEvent(ctx, e); err != nil {
		return fmt.Errorf("%w: save event: %w", ErrCommit, err)
	}
	return nil
}

// saveOccurrence stores the edited occurrence as a standalone event and only then
// excludes it from the series. When the exclusion fails the standalone copy is
// removed again and e stays an occurrence, so the series never loses an instance.
func (m *EventManager) saveOccurrence(ctx context.Context, e *domain.Event) error {
	standalone := *e
	standalone.Detach()
	if err := m.backend.SaveEvent(ctx, &standalone); err != nil {
		return fmt.Errorf("%w: save event: %w", ErrCommit, err)
	}

	if err := m.excludeOccurrence(ctx, e); err != nil {
		if rmErr := m.backend.RemoveEvent(ctx, standalone.ID); rmErr != nil {
			log.Printf("Error rolling back detached event %s: %v", standalone.ID, rmErr)
		}
		return fmt.Errorf("%w: save event: %w", ErrCommit, err)
	}

	*e = standalone
	return nil
}

// RemoveEvent deletes the event. For an occurrence only that instance is removed.
func (m *EventManager) RemoveEvent(ctx context.Context, e *domain.Event) error {
	if e == nil || !m.IsAccessGranted(ctx) {
		return nil
	}
	if e.IsNew() {
		return nil
	}

	if e.IsOccurrence() {
		if err := m.excludeOccurrence(ctx, e); err != nil {
			return fmt.Errorf("%w: remove event: %w", ErrCommit, err)
		}
		return nil
	}

	if err := m.backend.RemoveEvent(ctx, e.ID); err != nil {
		return fmt.Errorf("%w: remove event: %w", ErrCommit, err)
	}
	return nil
}

// excludeOccurrence adds the occurrence's original start to its master's exclusions
func (m *EventManager) excludeOccurrence(ctx context.Context, occ *domain.Event) error {
	master, err := m.backend.GetEvent(ctx, occ.MasterID)
	if err != nil {
		return fmt.Errorf("get master event: %w", err)
	}
	if master == nil || occ.OccurrenceStart == nil {
		return nil
	}
	for _, ex := range master.ExDates {
		if ex.Equal(*occ.OccurrenceStart) {
			return nil
		}
	}
	master.ExDates = append(master.ExDates, *occ.OccurrenceStart)
	return m.backend.SaveEvent(ctx, master)
}

// GetEvent returns a stored event by ID, or nil
func (m *EventManager) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	if !m.IsAccessGranted(ctx) {
		return nil, nil
	}
	e, err := m.backend.GetEvent(ctx, id)
	if err != nil || e == nil {
		return nil, err
	}
	e.Start = e.Start.In(m.tz)
	e.End = e.End.In(m.tz)
	return e, nil
}
