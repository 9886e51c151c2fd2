package domain

import (
	"slices"
	"time"
)

// Event is a calendar event in the store
type Event struct {
	ID         string
	CalendarID string
	Title      string
	AllDay     bool
	Start      time.Time
	End        time.Time
	RRule      string      // recurrence rule of a master, e.g. "FREQ=WEEKLY;BYDAY=MO"
	ExDates    []time.Time // excluded occurrence starts of a recurring master
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Set on occurrences expanded from a recurring master
	MasterID        string
	OccurrenceStart *time.Time

	persisted *eventState
}

type eventState struct {
	title   string
	allDay  bool
	start   time.Time
	end     time.Time
	rrule   string
	exDates []time.Time
}

func (s *eventState) equal(o *eventState) bool {
	return s.title == o.title &&
		s.allDay == o.allDay &&
		s.start.Equal(o.start) &&
		s.end.Equal(o.end) &&
		s.rrule == o.rrule &&
		slices.EqualFunc(s.exDates, o.exDates, time.Time.Equal)
}

// NewEvent returns an unsaved draft attached to the calendar
func NewEvent(calendarID string) *Event {
	return &Event{CalendarID: calendarID}
}

func (e *Event) state() *eventState {
	return &eventState{
		title:   e.Title,
		allDay:  e.AllDay,
		start:   e.Start,
		end:     e.End,
		rrule:   e.RRule,
		exDates: slices.Clone(e.ExDates),
	}
}

// MarkPersisted records the current field values as the stored state
func (e *Event) MarkPersisted() {
	e.persisted = e.state()
}

// IsNew returns true for a draft that was never stored
func (e *Event) IsNew() bool {
	return e.persisted == nil
}

// HasChanges returns true if the event differs from its last stored state.
// A draft always has changes.
func (e *Event) HasChanges() bool {
	if e.persisted == nil {
		return true
	}
	return !e.persisted.equal(e.state())
}

// IsRecurring returns true for a recurring master
func (e *Event) IsRecurring() bool {
	return e.RRule != ""
}

// IsOccurrence returns true for an instance expanded from a recurring master
func (e *Event) IsOccurrence() bool {
	return e.MasterID != ""
}

// Duration returns End - Start
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps returns true if the event intersects [from, to)
func (e *Event) Overlaps(from, to time.Time) bool {
	end := e.End
	if end.IsZero() || !end.After(e.Start) {
		end = e.Start.Add(time.Nanosecond)
	}
	return e.Start.Before(to) && end.After(from)
}

// Occurrence returns a copy of a recurring master placed at start
func (e *Event) Occurrence(start time.Time) *Event {
	orig := start
	occ := &Event{
		ID:              e.ID + "@" + start.UTC().Format("20060102T150405Z"),
		CalendarID:      e.CalendarID,
		Title:           e.Title,
		AllDay:          e.AllDay,
		Start:           start,
		End:             start.Add(e.Duration()),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
		MasterID:        e.ID,
		OccurrenceStart: &orig,
	}
	occ.MarkPersisted()
	return occ
}

// Detach turns an occurrence into a standalone draft
func (e *Event) Detach() {
	e.ID = ""
	e.MasterID = ""
	e.OccurrenceStart = nil
	e.RRule = ""
	e.ExDates = nil
	e.persisted = nil
}

// NextHour returns the start of the hour after now, in now's location
func NextHour(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(time.Hour)
}

// DefaultWindow returns the one hour window starting at NextHour(now)
func DefaultWindow(now time.Time) (start, end time.Time) {
	start = NextHour(now)
	return start, start.Add(time.Hour)
}

// SameDay returns true if both times fall on the same calendar day in a's location
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// StartOfDay returns midnight of t's day in t's location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NormalizeAllDay aligns an all-day event to whole days, End being exclusive
func (e *Event) NormalizeAllDay() {
	if !e.AllDay {
		return
	}
	e.Start = StartOfDay(e.Start)
	end := StartOfDay(e.End)
	if !end.Equal(e.End) {
		end = end.AddDate(0, 0, 1)
	}
	if !end.After(e.Start) {
		end = e.Start.AddDate(0, 0, 1)
	}
	e.End = end
}

// LastDay returns the day the event ends on. All-day events end exclusively at midnight.
func (e *Event) LastDay() time.Time {
	if e.AllDay && e.End.After(e.Start) && e.End.Equal(StartOfDay(e.End)) {
		return e.End.Add(-time.Nanosecond)
	}
	return e.End
}
