package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

// ReminderManager is the access-gated façade over the reminder store
type ReminderManager struct {
	access    Authorizer
	backend   ReminderBackend
	calendars *calendarLocator
	tz        *time.Location
	now       func() time.Time
}

// NewReminderManager creates a new reminder manager
func NewReminderManager(access Authorizer, backend ReminderBackend, opts ManagerOptions) *ReminderManager {
	opts = opts.withDefaults()
	return &ReminderManager{
		access:  access,
		backend: backend,
		calendars: &calendarLocator{
			backend:    backend,
			typ:        domain.EntityReminder,
			title:      opts.CalendarTitle,
			autoCreate: opts.AutoCreate,
		},
		tz:  opts.Timezone,
		now: time.Now,
	}
}

// SetClock replaces the time source
func (m *ReminderManager) SetClock(now func() time.Time) {
	m.now = now
}

// Now returns the current time in the manager's zone
func (m *ReminderManager) Now() time.Time {
	return m.now().In(m.tz)
}

// Location returns the zone reminders are presented in
func (m *ReminderManager) Location() *time.Location {
	return m.tz
}

// IsAccessGranted reports whether reminder access is authorized right now
func (m *ReminderManager) IsAccessGranted(ctx context.Context) bool {
	return granted(ctx, m.access, domain.EntityReminder)
}

// RequestAccess asks for reminder access if not decided yet and returns the outcome
func (m *ReminderManager) RequestAccess(ctx context.Context) (bool, error) {
	ok, err := m.access.Request(ctx, domain.EntityReminder)
	if err != nil {
		return false, fmt.Errorf("request reminder access: %w", err)
	}
	if ok {
		if _, err := m.calendars.ensure(ctx); err != nil {
			log.Printf("Error preparing reminder list: %v", err)
		}
	}
	return ok, nil
}

// Calendar returns the app's reminder list, or nil if access is missing or the store has none
func (m *ReminderManager) Calendar(ctx context.Context) (*domain.Calendar, error) {
	if !m.IsAccessGranted(ctx) {
		return nil, nil
	}
	return m.calendars.find(ctx)
}

// FetchReminders returns every reminder of the app's list, completed or not
func (m *ReminderManager) FetchReminders(ctx context.Context) ([]*domain.Reminder, error) {
	cal, err := m.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch reminders: %w", err)
	}
	if cal == nil {
		return nil, nil
	}

	reminders, err := m.backend.Reminders(ctx, cal.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch reminders: %w", err)
	}
	for _, r := range reminders {
		m.localize(r)
	}
	return reminders, nil
}

// localize presents alarm dates in the manager's zone
func (m *ReminderManager) localize(r *domain.Reminder) {
	for i := range r.Alarms {
		r.Alarms[i].AbsoluteDate = r.Alarms[i].AbsoluteDate.In(m.tz)
	}
}

// CreateReminder returns a new unsaved reminder in the app's list,
// or nil if access is missing or the list does not exist.
func (m *ReminderManager) CreateReminder(ctx context.Context) (*domain.Reminder, error) {
	cal, err := m.Calendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	if cal == nil {
		return nil, nil
	}
	return domain.NewReminder(cal.ID), nil
}

// SaveReminder commits the reminder
func (m *ReminderManager) SaveReminder(ctx context.Context, r *domain.Reminder) error {
	if r == nil || !m.IsAccessGranted(ctx) {
		return nil
	}
	if !r.HasChanges() {
		return nil
	}
	if err := m.backend.SaveReminder(ctx, r); err != nil {
		return fmt.Errorf("%w: save reminder: %w", ErrCommit, err)
	}
	return nil
}

// RemoveReminder deletes the reminder
func (m *ReminderManager) RemoveReminder(ctx context.Context, r *domain.Reminder) error {
	if r == nil || !m.IsAccessGranted(ctx) {
		return nil
	}
	if r.IsNew() {
		return nil
	}
	if err := m.backend.RemoveReminder(ctx, r.ID); err != nil {
		return fmt.Errorf("%w: remove reminder: %w", ErrCommit, err)
	}
	return nil
}

// ToggleCompleted flips the completion flag and commits it
func (m *ReminderManager) ToggleCompleted(ctx context.Context, r *domain.Reminder) error {
	if r == nil || !m.IsAccessGranted(ctx) {
		return nil
	}
	r.SetCompleted(!r.Completed, m.Now())
	return m.SaveReminder(ctx, r)
}

// GetReminder returns a stored reminder by ID, or nil
func (m *ReminderManager) GetReminder(ctx context.Context, id string) (*domain.Reminder, error) {
	if !m.IsAccessGranted(ctx) {
		return nil, nil
	}
	r, err := m.backend.GetReminder(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	m.localize(r)
	return r, nil
}

// DueAlarms returns incomplete reminders whose alarm falls in (after, until]
func (m *ReminderManager) DueAlarms(ctx context.Context, after, until time.Time) ([]*domain.Reminder, error) {
	reminders, err := m.FetchReminders(ctx)
	if err != nil {
		return nil, err
	}
	var due []*domain.Reminder
	for _, r := range reminders {
		if r.Completed {
			continue
		}
		date, ok := r.AlarmDate()
		if !ok {
			continue
		}
		if date.After(after) && !date.After(until) {
			due = append(due, r)
		}
	}
	return due, nil
}
