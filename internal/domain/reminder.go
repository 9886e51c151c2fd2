package domain

import (
	"time"
)

// Alarm fires at an absolute point in time
type Alarm struct {
	AbsoluteDate time.Time
}

// DueDate is the calendar components a reminder is due on
type DueDate struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// DueDateFrom returns the minute-precision components of t
func DueDateFrom(t time.Time) *DueDate {
	return &DueDate{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// Time returns the due date as a time in loc
func (d *DueDate) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, d.Hour, d.Minute, 0, 0, loc)
}

// Reminder is a to-do item in a reminder list.
// The app keeps at most one alarm per reminder, and the due date mirrors it.
type Reminder struct {
	ID          string
	CalendarID  string
	Title       string
	Completed   bool
	CompletedAt *time.Time
	Alarms      []Alarm
	DueDate     *DueDate
	CreatedAt   time.Time
	UpdatedAt   time.Time

	persisted *reminderState
}

type reminderState struct {
	title     string
	completed bool
	alarms    []Alarm
	dueDate   *DueDate
}

func (s *reminderState) equal(o *reminderState) bool {
	if s.title != o.title || s.completed != o.completed || len(s.alarms) != len(o.alarms) {
		return false
	}
	for i := range s.alarms {
		if !s.alarms[i].AbsoluteDate.Equal(o.alarms[i].AbsoluteDate) {
			return false
		}
	}
	switch {
	case s.dueDate == nil && o.dueDate == nil:
		return true
	case s.dueDate == nil || o.dueDate == nil:
		return false
	default:
		return *s.dueDate == *o.dueDate
	}
}

// NewReminder returns an unsaved draft attached to the list
func NewReminder(calendarID string) *Reminder {
	return &Reminder{CalendarID: calendarID}
}

func (r *Reminder) state() *reminderState {
	st := &reminderState{
		title:     r.Title,
		completed: r.Completed,
		alarms:    append([]Alarm(nil), r.Alarms...),
	}
	if r.DueDate != nil {
		d := *r.DueDate
		st.dueDate = &d
	}
	return st
}

// MarkPersisted records the current field values as the stored state
func (r *Reminder) MarkPersisted() {
	r.persisted = r.state()
}

// IsNew returns true for a draft that was never stored
func (r *Reminder) IsNew() bool {
	return r.persisted == nil
}

// HasChanges returns true if the reminder differs from its last stored state.
// A draft always has changes.
func (r *Reminder) HasChanges() bool {
	if r.persisted == nil {
		return true
	}
	return !r.persisted.equal(r.state())
}

// HasAlarm returns true if an alarm is set
func (r *Reminder) HasAlarm() bool {
	return len(r.Alarms) > 0
}

// AlarmDate returns the date of the alarm, if any
func (r *Reminder) AlarmDate() (time.Time, bool) {
	if len(r.Alarms) == 0 {
		return time.Time{}, false
	}
	return r.Alarms[0].AbsoluteDate, true
}

// AddAlarm sets the single alarm and its mirrored due date
func (r *Reminder) AddAlarm(date time.Time) {
	r.Alarms = []Alarm{{AbsoluteDate: date}}
	r.DueDate = DueDateFrom(date)
}

// SetAlarmDate moves the existing alarm and its due date. No-op without an alarm.
func (r *Reminder) SetAlarmDate(date time.Time) {
	if len(r.Alarms) == 0 {
		return
	}
	r.Alarms[0].AbsoluteDate = date
	r.DueDate = DueDateFrom(date)
}

// RemoveAlarm clears the alarm and the due date together
func (r *Reminder) RemoveAlarm() {
	r.Alarms = nil
	r.DueDate = nil
}

// SetCompleted flips the completion flag and stamps CompletedAt
func (r *Reminder) SetCompleted(done bool, now time.Time) {
	r.Completed = done
	if done {
		r.CompletedAt = &now
	} else {
		r.CompletedAt = nil
	}
}

// StatusEmoji returns emoji for the completion state
func (r *Reminder) StatusEmoji() string {
	if r.Completed {
		return "✅"
	}
	if r.HasAlarm() {
		return "🔔"
	}
	return "⬜"
}
