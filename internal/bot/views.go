package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/screen"
)

const (
	inputDateTime = "02.01.2006 15:04"
	inputDate     = "02.01.2006"
)

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}

func unauthorizedText(typ domain.EntityType) string {
	return fmt.Sprintf("EventMe has no access to your %s.\n\n/reset_access %s to be asked again.", typ.Plural(), typ.Plural())
}

// eventListText renders one page of the events list
func eventListText(list *screen.EventList, events []*domain.Event, page int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("📅 <b>Events</b>\n\n")

	switch list.State() {
	case screen.StateUnauthorized:
		sb.WriteString(unauthorizedText(domain.EntityEvent))
	case screen.StateAuthorizedEmpty:
		sb.WriteString("No events this month.")
	default:
		_, start, end := pageBounds(len(events), page)
		for i := start; i < end; i++ {
			e := events[i]
			icon := ""
			if e.IsOccurrence() {
				icon = " 🔁"
			}
			sb.WriteString(fmt.Sprintf("%d. <b>%s</b>%s\n    %s\n", i+1, html.EscapeString(displayTitle(e.Title)), icon,
				screen.EventRowDetail(e, now)))
		}
	}

	if err := list.Err(); err != nil {
		sb.WriteString("\n\n⚠️ " + html.EscapeString(err.Error()))
	}
	return sb.String()
}

// reminderListText renders one page of the selected reminders segment
func reminderListText(list *screen.ReminderList, reminders []*domain.Reminder, page int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("🔔 <b>Reminders</b>\n\n")

	switch {
	case list.State() == screen.StateUnauthorized:
		sb.WriteString(unauthorizedText(domain.EntityReminder))
	case len(reminders) == 0:
		if list.Segment() == screen.SegmentCompleted {
			sb.WriteString("No completed reminders.")
		} else {
			sb.WriteString("No reminders.")
		}
	default:
		_, start, end := pageBounds(len(reminders), page)
		for i := start; i < end; i++ {
			r := reminders[i]
			sb.WriteString(fmt.Sprintf("%s <b>%s</b>", r.StatusEmoji(), html.EscapeString(displayTitle(r.Title))))
			if detail := screen.ReminderRowDetail(r, now); detail != "" {
				sb.WriteString("\n    " + detail)
			}
			sb.WriteString("\n")
		}
	}

	if err := list.Err(); err != nil {
		sb.WriteString("\n\n⚠️ " + html.EscapeString(err.Error()))
	}
	return sb.String()
}

func eventDetailText(d *screen.EventDetail, pending string) string {
	var sb strings.Builder
	if d.IsNew() {
		sb.WriteString("📅 <b>New Event</b>\n\n")
	} else {
		sb.WriteString("📅 <b>Edit Event</b>\n\n")
	}

	sb.WriteString("<b>Title:</b> " + html.EscapeString(d.Title()) + "\n")
	if d.AllDay() {
		sb.WriteString("<b>All day:</b> yes\n")
		sb.WriteString("<b>Starts:</b> " + d.Start().Format("Jan 2, 2006") + "\n")
		sb.WriteString("<b>Ends:</b> " + d.Event().LastDay().Format("Jan 2, 2006") + "\n")
	} else {
		sb.WriteString("<b>Starts:</b> " + screen.FormatDateTime(d.Start()) + "\n")
		sb.WriteString("<b>Ends:</b> " + screen.FormatDateTime(d.End()) + "\n")
	}
	if d.Event().IsOccurrence() {
		sb.WriteString("\n🔁 Changes apply to this occurrence only.\n")
	}

	writePending(&sb, pending, d.AllDay())
	if err := d.Err(); err != nil {
		sb.WriteString("\n❌ " + html.EscapeString(err.Error()))
	}
	return sb.String()
}

func reminderDetailText(d *screen.ReminderDetail, pending string) string {
	var sb strings.Builder
	if d.IsNew() {
		sb.WriteString("🔔 <b>New Reminder</b>\n\n")
	} else {
		sb.WriteString("🔔 <b>Edit Reminder</b>\n\n")
	}

	sb.WriteString("<b>Title:</b> " + html.EscapeString(d.Title()) + "\n")
	if d.Remind() {
		sb.WriteString("<b>Remind me:</b> " + screen.FormatDateTime(d.AlarmDate()) + "\n")
	} else {
		sb.WriteString("<b>Remind me:</b> off\n")
	}

	writePending(&sb, pending, false)
	if err := d.Err(); err != nil {
		sb.WriteString("\n❌ " + html.EscapeString(err.Error()))
	}
	return sb.String()
}

func writePending(sb *strings.Builder, pending string, allDay bool) {
	layout := "DD.MM.YYYY HH:MM"
	if allDay {
		layout = "DD.MM.YYYY"
	}
	switch pending {
	case inputTitle:
		sb.WriteString("\n✏️ Send the title")
	case inputStart:
		sb.WriteString("\n✏️ Send the start as " + layout)
	case inputEnd:
		sb.WriteString("\n✏️ Send the end as " + layout)
	case inputAlarm:
		sb.WriteString("\n✏️ Send the alarm as " + layout)
	}
}

// parseDateTime reads "DD.MM.YYYY HH:MM" in loc. With dateOnly, "DD.MM.YYYY" is accepted too.
func parseDateTime(text string, loc *time.Location, dateOnly bool) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.ParseInLocation(inputDateTime, text, loc); err == nil {
		return t, nil
	}
	if dateOnly {
		if t, err := time.ParseInLocation(inputDate, text, loc); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("invalid date %q, use DD.MM.YYYY", text)
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use DD.MM.YYYY HH:MM", text)
}
