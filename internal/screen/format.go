package screen

import (
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

const (
	dateLayout     = "Jan 2, 2006"
	timeLayout     = "15:04"
	dateTimeLayout = "Jan 2, 2006, 15:04"
)

// formatDate renders t as a medium date. With relative set, dates next to
// now are named instead.
func formatDate(t, now time.Time, relative bool) string {
	if relative {
		today := now.In(t.Location())
		switch {
		case domain.SameDay(t, today):
			return "Today"
		case domain.SameDay(t, today.AddDate(0, 0, 1)):
			return "Tomorrow"
		case domain.SameDay(t, today.AddDate(0, 0, -1)):
			return "Yesterday"
		}
	}
	return t.Format(dateLayout)
}

// EventRowDetail returns the secondary line of an event row
func EventRowDetail(e *domain.Event, now time.Time) string {
	last := e.LastDay()
	sameDay := domain.SameDay(e.Start, last)
	start := formatDate(e.Start, now, sameDay)
	end := formatDate(last, now, sameDay)

	if e.AllDay {
		if sameDay {
			return start + " in all day"
		}
		return "From " + start + " to " + end
	}

	startTime := e.Start.Format(timeLayout)
	endTime := e.End.Format(timeLayout)
	if sameDay {
		return start + " from " + startTime + " to " + endTime
	}
	return "From " + start + ", " + startTime + " to " + end + ", " + endTime
}

// ReminderRowDetail returns the secondary line of a reminder row, empty without an alarm
func ReminderRowDetail(r *domain.Reminder, now time.Time) string {
	date, ok := r.AlarmDate()
	if !ok {
		return ""
	}
	return formatDate(date, now, true) + ", " + date.Format(timeLayout)
}

// FormatDateTime renders a date picker value
func FormatDateTime(t time.Time) string {
	return t.Format(dateTimeLayout)
}
