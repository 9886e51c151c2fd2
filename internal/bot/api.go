package bot

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/screen"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type EventResponse struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id"`
	Title      string `json:"title"`
	Start      string `json:"start"`
	End        string `json:"end"`
	AllDay     bool   `json:"all_day"`
	Recurring  bool   `json:"recurring"`
	Detail     string `json:"detail"`
}

type ReminderResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Completed bool    `json:"completed"`
	AlarmDate *string `json:"alarm_date,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// SetupAPI registers the health check, the REST API with Basic Auth and the ICS feed
func (b *Bot) SetupAPI(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		b.jsonResponse(w, map[string]string{"status": "ok"})
	})

	if b.cfg.APIUsername == "" || b.cfg.APIPassword == "" {
		log.Printf("API credentials not set, REST API disabled")
		return // API disabled if no credentials
	}

	mux.HandleFunc("/api/events", b.basicAuth(b.apiEvents))
	mux.HandleFunc("/api/reminders", b.basicAuth(b.apiReminders))
	mux.HandleFunc("/api/reminders/toggle", b.basicAuth(b.apiReminderToggle))
	mux.HandleFunc("/calendar.ics", b.basicAuth(b.apiCalendarICS))
}

// basicAuth middleware
func (b *Bot) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != b.cfg.APIUsername || password != b.cfg.APIPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="EventMe API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Bot) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// parseAPITime reads "YYYY-MM-DD HH:MM" or "YYYY-MM-DD" in the configured timezone.
// The second result is true for a date without time.
func (b *Bot) parseAPITime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if len(s) == 10 {
		t, err := time.ParseInLocation("2006-01-02", s, b.cfg.Timezone)
		return t, true, err
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, b.cfg.Timezone)
	return t, false, err
}

// GET /api/events - events of this month, or ?from=YYYY-MM-DD&to=YYYY-MM-DD
// POST /api/events - create event
// DELETE /api/events?id= - delete event or one occurrence
func (b *Bot) apiEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !b.events.IsAccessGranted(ctx) {
		b.jsonError(w, "Access to events is not granted", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var events []*domain.Event
		var err error
		from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
		if from != "" && to != "" {
			fromTime, _, ferr := b.parseAPITime(from)
			toTime, _, terr := b.parseAPITime(to)
			if ferr != nil || terr != nil {
				b.jsonError(w, "Invalid from/to format (use YYYY-MM-DD)", http.StatusBadRequest)
				return
			}
			events, err = b.events.FetchEventsBetween(ctx, fromTime, toTime)
		} else {
			events, err = b.events.FetchEvents(ctx)
		}
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, b.eventsToResponse(events))

	case http.MethodPost:
		b.apiCreateEvent(w, r)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			b.jsonError(w, "id is required", http.StatusBadRequest)
			return
		}
		event, err := b.findEvent(r, id)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if event == nil {
			b.jsonError(w, "Event not found", http.StatusNotFound)
			return
		}
		if err := b.events.RemoveEvent(ctx, event); err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, map[string]interface{}{
			"deleted": id,
			"message": "Event deleted",
		})

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// findEvent looks id up among the fetched rows first, so occurrences of
// recurring events resolve too
func (b *Bot) findEvent(r *http.Request, id string) (*domain.Event, error) {
	events, err := b.events.FetchEvents(r.Context())
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return b.events.GetEvent(r.Context(), id)
}

func (b *Bot) apiCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Start  string `json:"start"` // YYYY-MM-DD HH:MM or YYYY-MM-DD
		End    string `json:"end"`   // optional
		AllDay bool   `json:"all_day"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		b.jsonError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.Start == "" {
		b.jsonError(w, "Start is required", http.StatusBadRequest)
		return
	}

	start, dateOnly, err := b.parseAPITime(req.Start)
	if err != nil {
		b.jsonError(w, "Invalid start format (use YYYY-MM-DD or YYYY-MM-DD HH:MM)", http.StatusBadRequest)
		return
	}
	allDay := req.AllDay || dateOnly

	var end time.Time
	switch {
	case req.End != "":
		var endDateOnly bool
		end, endDateOnly, err = b.parseAPITime(req.End)
		if err != nil {
			b.jsonError(w, "Invalid end format", http.StatusBadRequest)
			return
		}
		if allDay && endDateOnly {
			// the given day is the last day of the event
			end = end.AddDate(0, 0, 1)
		}
	case allDay:
		end = start.AddDate(0, 0, 1)
	default:
		end = start.Add(time.Hour)
	}

	event, err := b.events.CreateEvent(r.Context())
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if event == nil {
		b.jsonError(w, "Calendar not available", http.StatusServiceUnavailable)
		return
	}

	event.Title = req.Title
	event.AllDay = allDay
	event.Start = start
	event.End = end
	if allDay {
		event.NormalizeAllDay()
	} else if end.Before(start) {
		b.jsonError(w, "End is before start", http.StatusBadRequest)
		return
	}

	if err := b.events.SaveEvent(r.Context(), event); err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.jsonResponse(w, b.eventToResponse(event))
}

// GET /api/reminders - all reminders, or ?completed=true|false
// POST /api/reminders - create reminder
// DELETE /api/reminders?id= - delete reminder
func (b *Bot) apiReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !b.reminders.IsAccessGranted(ctx) {
		b.jsonError(w, "Access to reminders is not granted", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		reminders, err := b.reminders.FetchReminders(ctx)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		incomplete, completed := screen.Partition(reminders)
		switch r.URL.Query().Get("completed") {
		case "true":
			reminders = completed
		case "false":
			reminders = incomplete
		}
		b.jsonResponse(w, b.remindersToResponse(reminders))

	case http.MethodPost:
		var req struct {
			Title     string `json:"title"`
			AlarmDate string `json:"alarm_date"` // optional YYYY-MM-DD HH:MM
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			b.jsonError(w, "Title is required", http.StatusBadRequest)
			return
		}

		reminder, err := b.reminders.CreateReminder(ctx)
		if err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if reminder == nil {
			b.jsonError(w, "Reminder list not available", http.StatusServiceUnavailable)
			return
		}
		reminder.Title = req.Title
		if req.AlarmDate != "" {
			date, _, err := b.parseAPITime(req.AlarmDate)
			if err != nil {
				b.jsonError(w, "Invalid alarm_date format (use YYYY-MM-DD HH:MM)", http.StatusBadRequest)
				return
			}
			reminder.AddAlarm(date)
		}

		if err := b.reminders.SaveReminder(ctx, reminder); err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, b.reminderToResponse(reminder))

	case http.MethodDelete:
		reminder, ok := b.lookupReminder(w, r)
		if !ok {
			return
		}
		if err := b.reminders.RemoveReminder(ctx, reminder); err != nil {
			b.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b.jsonResponse(w, map[string]interface{}{
			"deleted": reminder.ID,
			"message": "Reminder deleted",
		})

	default:
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/reminders/toggle?id= - flip completion
func (b *Bot) apiReminderToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !b.reminders.IsAccessGranted(r.Context()) {
		b.jsonError(w, "Access to reminders is not granted", http.StatusForbidden)
		return
	}

	reminder, ok := b.lookupReminder(w, r)
	if !ok {
		return
	}
	if err := b.reminders.ToggleCompleted(r.Context(), reminder); err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	b.jsonResponse(w, b.reminderToResponse(reminder))
}

// lookupReminder loads the reminder named by ?id=, writing the error response if it cannot
func (b *Bot) lookupReminder(w http.ResponseWriter, r *http.Request) (*domain.Reminder, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		b.jsonError(w, "id is required", http.StatusBadRequest)
		return nil, false
	}
	reminder, err := b.reminders.GetReminder(r.Context(), id)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if reminder == nil {
		b.jsonError(w, "Reminder not found", http.StatusNotFound)
		return nil, false
	}
	return reminder, true
}

// GET /calendar.ics - events and reminders as an iCalendar feed
func (b *Bot) apiCalendarICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		b.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ics, err := b.export.ICS(r.Context())
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="eventme.ics"`)
	w.Write([]byte(ics))
}

func (b *Bot) eventsToResponse(events []*domain.Event) []EventResponse {
	result := make([]EventResponse, len(events))
	for i, e := range events {
		result[i] = b.eventToResponse(e)
	}
	return result
}

func (b *Bot) eventToResponse(e *domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		CalendarID: e.CalendarID,
		Title:      e.Title,
		Start:      e.Start.Format(time.RFC3339),
		End:        e.End.Format(time.RFC3339),
		AllDay:     e.AllDay,
		Recurring:  e.IsRecurring() || e.IsOccurrence(),
		Detail:     screen.EventRowDetail(e, b.events.Now()),
	}
}

func (b *Bot) remindersToResponse(reminders []*domain.Reminder) []ReminderResponse {
	result := make([]ReminderResponse, len(reminders))
	for i, r := range reminders {
		result[i] = b.reminderToResponse(r)
	}
	return result
}

func (b *Bot) reminderToResponse(r *domain.Reminder) ReminderResponse {
	resp := ReminderResponse{
		ID:        r.ID,
		Title:     r.Title,
		Completed: r.Completed,
		Detail:    screen.ReminderRowDetail(r, b.reminders.Now()),
	}
	if date, ok := r.AlarmDate(); ok {
		s := date.In(b.cfg.Timezone).Format(time.RFC3339)
		resp.AlarmDate = &s
	}
	return resp
}
