package service

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/tazhate/eventme/internal/domain"
)

const icsProductID = "-//EventMe//Calendar Feed//EN"

// ExportService renders the app's calendar and reminder list as an iCalendar feed
type ExportService struct {
	events    *EventManager
	reminders *ReminderManager
	name      string
}

// NewExportService creates a new export service
func NewExportService(events *EventManager, reminders *ReminderManager, name string) *ExportService {
	if name == "" {
		name = domain.DefaultCalendarTitle
	}
	return &ExportService{events: events, reminders: reminders, name: name}
}

// ICS returns the feed. Sections without access are left out.
func (s *ExportService) ICS(ctx context.Context) (string, error) {
	events, err := s.events.FetchEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("export events: %w", err)
	}
	reminders, err := s.reminders.FetchReminders(ctx)
	if err != nil {
		return "", fmt.Errorf("export reminders: %w", err)
	}
	return BuildICS(s.name, events, reminders, s.events.Now()), nil
}

// BuildICS serializes events and reminders into one VCALENDAR
func BuildICS(name string, events []*domain.Event, reminders []*domain.Reminder, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(name)

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(now)
		ev.SetSummary(e.Title)
		if e.AllDay {
			ev.SetAllDayStartAt(e.Start)
			ev.SetAllDayEndAt(e.End)
		} else {
			ev.SetStartAt(e.Start)
			ev.SetEndAt(e.End)
		}
	}

	for _, r := range reminders {
		todo := cal.AddTodo(r.ID)
		todo.SetProperty(ics.ComponentPropertyDtstamp, icsUTC(now))
		todo.SetProperty(ics.ComponentPropertySummary, r.Title)
		if r.Completed {
			todo.SetProperty(ics.ComponentPropertyStatus, "COMPLETED")
		} else {
			todo.SetProperty(ics.ComponentPropertyStatus, "NEEDS-ACTION")
		}
		if date, ok := r.AlarmDate(); ok {
			todo.SetProperty(ics.ComponentPropertyDue, icsUTC(date))
		}
	}

	return cal.Serialize()
}

func icsUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
