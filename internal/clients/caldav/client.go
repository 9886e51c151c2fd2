package caldav

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/notify"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"

	productID = "-//EventMe//CalDAV//EN"
)

// ErrCalendarCreateUnsupported is returned by CreateCalendar: calendars have to
// be created in the calendar app that owns the account.
var ErrCalendarCreateUnsupported = errors.New("calendar creation is not supported over CalDAV")

// Client is a CalDAV store backend for events (VEVENT) and reminders (VTODO).
// Record IDs are object paths on the server.
type Client struct {
	baseURL  string
	username string
	password string
	location *time.Location
	changes  *notify.Center

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client. changes may be nil.
func NewClient(baseURL, username, password string, loc *time.Location, changes *notify.Center) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		location: loc,
		changes:  changes,
	}
}

// IsConfigured returns true if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) publish() {
	if c.changes != nil {
		c.changes.Publish()
	}
}

// discover returns all calendars of the user
func (c *Client) discover(ctx context.Context) ([]caldav.Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	// Find the user's calendar home
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}
	return cals, nil
}

// componentFor maps an entity type to the iCalendar component that stores it
func componentFor(typ domain.EntityType) string {
	if typ == domain.EntityReminder {
		return ical.CompToDo
	}
	return ical.CompEvent
}

// Calendars returns the calendars that can hold the entity type
func (c *Client) Calendars(ctx context.Context, typ domain.EntityType) ([]domain.Calendar, error) {
	cals, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	comp := componentFor(typ)
	var result []domain.Calendar
	for _, cal := range cals {
		// An empty set means the server did not restrict components
		if len(cal.SupportedComponentSet) > 0 && !slices.Contains(cal.SupportedComponentSet, comp) {
			continue
		}
		result = append(result, domain.Calendar{
			ID:    cal.Path,
			Title: cal.Name,
			Type:  typ,
		})
	}
	return result, nil
}

// CreateCalendar always fails, see ErrCalendarCreateUnsupported
func (c *Client) CreateCalendar(ctx context.Context, cal *domain.Calendar) error {
	return fmt.Errorf("create %q: %w", cal.Title, ErrCalendarCreateUnsupported)
}

// query runs a calendar-query for one component type
func (c *Client) query(ctx context.Context, calendarPath string, comp caldav.CompFilter) ([]caldav.CalendarObject, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	if calendarPath == "" {
		return nil, fmt.Errorf("calendar path not specified")
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{comp},
		},
	}

	objects, err := client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	return objects, nil
}

// objectPath returns the path for a new object in the calendar
func objectPath(calendarPath, uid string) string {
	p := calendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + uid + ".ics"
}

// calendarOf returns the calendar path an object path lives in
func calendarOf(objPath string) string {
	return path.Dir(objPath) + "/"
}

// get fetches an object, returning nil if the server has no such object
func (c *Client) get(ctx context.Context, objPath string) (*caldav.CalendarObject, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	obj, err := client.GetCalendarObject(ctx, objPath)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

func (c *Client) put(ctx context.Context, objPath string, cal *ical.Calendar) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if _, err := client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	c.publish()
	return nil
}

func (c *Client) remove(ctx context.Context, objPath string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, objPath); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	c.publish()
	return nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

// newCalendar returns an empty VCALENDAR with the mandatory properties
func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// firstChild returns the first child component with the given name
func firstChild(cal *ical.Calendar, name string) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, comp := range cal.Children {
		if comp.Name == name {
			return comp
		}
	}
	return nil
}

// === Events ===

// EventsInRange returns events of the calendar overlapping [from, to).
// Recurring masters are returned unexpanded.
func (c *Client) EventsInRange(ctx context.Context, calendarPath string, from, to time.Time) ([]*domain.Event, error) {
	objects, err := c.query(ctx, calendarPath, caldav.CompFilter{
		Name:  ical.CompEvent,
		Start: from.UTC(),
		End:   to.UTC(),
	})
	if err != nil {
		return nil, err
	}

	var events []*domain.Event
	for i := range objects {
		event, err := c.parseEvent(&objects[i], calendarPath)
		if err != nil {
			continue // Skip invalid events
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// GetEvent returns an event by object path, or nil if it does not exist
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	obj, err := c.get(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	return c.parseEvent(obj, calendarOf(id))
}

// SaveEvent creates or updates the event object.
// Properties the app does not manage are preserved on update.
func (c *Client) SaveEvent(ctx context.Context, e *domain.Event) error {
	var cal *ical.Calendar
	var comp *ical.Component

	if e.ID != "" {
		obj, err := c.get(ctx, e.ID)
		if err != nil {
			return err
		}
		if obj != nil {
			cal = obj.Data
			comp = firstChild(cal, ical.CompEvent)
		}
	}

	if comp == nil {
		uid := uuid.NewString()
		if e.ID == "" {
			e.ID = objectPath(e.CalendarID, uid)
		}
		cal = newCalendar()
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, uid)
		event.Props.SetDateTime(ical.PropCreated, time.Now().UTC())
		cal.Children = append(cal.Children, event.Component)
		comp = event.Component
	}

	writeEvent(comp, e)

	if err := c.put(ctx, e.ID, cal); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.MarkPersisted()
	return nil
}

// RemoveEvent deletes the event object
func (c *Client) RemoveEvent(ctx context.Context, id string) error {
	if err := c.remove(ctx, id); err != nil {
		return fmt.Errorf("remove event: %w", err)
	}
	return nil
}

// parseEvent parses a CalDAV object into an Event
func (c *Client) parseEvent(obj *caldav.CalendarObject, calendarPath string) (*domain.Event, error) {
	comp := firstChild(obj.Data, ical.CompEvent)
	if comp == nil {
		return nil, fmt.Errorf("no VEVENT in %s", obj.Path)
	}

	event := &domain.Event{
		ID:         obj.Path,
		CalendarID: calendarPath,
		UpdatedAt:  obj.ModTime,
	}

	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		event.Title, _ = prop.Text()
	}

	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		t, err := prop.DateTime(c.location)
		if err != nil {
			return nil, fmt.Errorf("parse DTSTART: %w", err)
		}
		event.Start = t
		// Check if all-day event
		if valueType := prop.Params.Get(ical.ParamValue); valueType == string(ical.ValueDate) {
			event.AllDay = true
		}
	}

	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		if t, err := prop.DateTime(c.location); err == nil {
			event.End = t
		}
	}
	if event.End.IsZero() {
		if event.AllDay {
			event.End = event.Start.AddDate(0, 0, 1)
		} else {
			event.End = event.Start
		}
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		event.RRule = prop.Value
	}

	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		for _, part := range strings.Split(prop.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			single := ical.Prop{Name: prop.Name, Params: prop.Params, Value: part}
			if t, err := single.DateTime(c.location); err == nil {
				event.ExDates = append(event.ExDates, t)
			}
		}
	}

	if prop := comp.Props.Get(ical.PropCreated); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			event.CreatedAt = t
		}
	}

	event.MarkPersisted()
	return event, nil
}

// tzidParam names the zone of a local DATE-TIME value
const tzidParam = "TZID"

// localDateTimeFormat is a DATE-TIME without the UTC suffix, read in its TZID
const localDateTimeFormat = "20060102T150405"

// propZone returns the zone an existing property is written in, or nil for UTC
// and floating values and for zones this host does not know.
func propZone(prop *ical.Prop) *time.Location {
	if prop == nil {
		return nil
	}
	tzid := prop.Params.Get(tzidParam)
	if tzid == "" {
		return nil
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil
	}
	return loc
}

// newDateTimeProp returns a DATE-TIME property in zone, or in UTC if zone is nil
func newDateTimeProp(name string, t time.Time, zone *time.Location) *ical.Prop {
	prop := ical.NewProp(name)
	if zone == nil {
		prop.SetDateTime(t.UTC())
		return prop
	}
	prop.Params.Set(tzidParam, zone.String())
	prop.Value = t.In(zone).Format(localDateTimeFormat)
	return prop
}

// writeEvent copies the managed fields into a VEVENT. Timed values keep the
// TZID the event was written with, so a series created elsewhere in local
// time keeps following that zone's DST rules.
func writeEvent(comp *ical.Component, e *domain.Event) {
	comp.Props.SetText(ical.PropSummary, e.Title)

	zone := propZone(comp.Props.Get(ical.PropDateTimeStart))

	if e.AllDay {
		comp.Props.SetDate(ical.PropDateTimeStart, e.Start)
		comp.Props.SetDate(ical.PropDateTimeEnd, e.End)
	} else {
		comp.Props.Set(newDateTimeProp(ical.PropDateTimeStart, e.Start, zone))
		comp.Props.Set(newDateTimeProp(ical.PropDateTimeEnd, e.End, zone))
	}

	delete(comp.Props, ical.PropRecurrenceRule)
	if e.RRule != "" {
		rule := ical.NewProp(ical.PropRecurrenceRule)
		rule.Value = e.RRule
		comp.Props.Set(rule)
	}

	delete(comp.Props, ical.PropExceptionDates)
	for _, d := range e.ExDates {
		if e.AllDay {
			ex := ical.NewProp(ical.PropExceptionDates)
			ex.SetDate(d)
			comp.Props.Add(ex)
			continue
		}
		comp.Props.Add(newDateTimeProp(ical.PropExceptionDates, d, zone))
	}

	now := time.Now().UTC()
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now)
	comp.Props.SetDateTime(ical.PropLastModified, now)
}

// === Reminders ===

// Reminders returns every VTODO in the list
func (c *Client) Reminders(ctx context.Context, calendarPath string) ([]*domain.Reminder, error) {
	objects, err := c.query(ctx, calendarPath, caldav.CompFilter{Name: ical.CompToDo})
	if err != nil {
		return nil, err
	}

	var reminders []*domain.Reminder
	for i := range objects {
		r, err := c.parseReminder(&objects[i], calendarPath)
		if err != nil {
			continue
		}
		reminders = append(reminders, r)
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].CreatedAt.Before(reminders[j].CreatedAt)
	})
	return reminders, nil
}

// GetReminder returns a reminder by object path, or nil if it does not exist
func (c *Client) GetReminder(ctx context.Context, id string) (*domain.Reminder, error) {
	obj, err := c.get(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	return c.parseReminder(obj, calendarOf(id))
}

// SaveReminder creates or updates the VTODO object
func (c *Client) SaveReminder(ctx context.Context, r *domain.Reminder) error {
	var cal *ical.Calendar
	var comp *ical.Component

	if r.ID != "" {
		obj, err := c.get(ctx, r.ID)
		if err != nil {
			return err
		}
		if obj != nil {
			cal = obj.Data
			comp = firstChild(cal, ical.CompToDo)
		}
	}

	if comp == nil {
		uid := uuid.NewString()
		if r.ID == "" {
			r.ID = objectPath(r.CalendarID, uid)
		}
		cal = newCalendar()
		comp = ical.NewComponent(ical.CompToDo)
		comp.Props.SetText(ical.PropUID, uid)
		comp.Props.SetDateTime(ical.PropCreated, time.Now().UTC())
		cal.Children = append(cal.Children, comp)
	}

	c.writeReminder(comp, r)

	if err := c.put(ctx, r.ID, cal); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.MarkPersisted()
	return nil
}

// RemoveReminder deletes the VTODO object
func (c *Client) RemoveReminder(ctx context.Context, id string) error {
	if err := c.remove(ctx, id); err != nil {
		return fmt.Errorf("remove reminder: %w", err)
	}
	return nil
}

// parseReminder parses a CalDAV object into a Reminder
func (c *Client) parseReminder(obj *caldav.CalendarObject, calendarPath string) (*domain.Reminder, error) {
	comp := firstChild(obj.Data, ical.CompToDo)
	if comp == nil {
		return nil, fmt.Errorf("no VTODO in %s", obj.Path)
	}

	r := &domain.Reminder{
		ID:         obj.Path,
		CalendarID: calendarPath,
		UpdatedAt:  obj.ModTime,
	}

	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		r.Title, _ = prop.Text()
	}
	if prop := comp.Props.Get(ical.PropStatus); prop != nil {
		r.Completed = strings.EqualFold(prop.Value, "COMPLETED")
	}
	if prop := comp.Props.Get(ical.PropCompleted); prop != nil {
		if t, err := prop.DateTime(c.location); err == nil {
			r.Completed = true
			r.CompletedAt = &t
		}
	}
	if prop := comp.Props.Get(ical.PropCreated); prop != nil {
		if t, err := prop.DateTime(time.UTC); err == nil {
			r.CreatedAt = t
		}
	}

	// Only absolute alarms are managed; the app keeps at most one.
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil || trigger.Params.Get(ical.ParamValue) != string(ical.ValueDateTime) {
			continue
		}
		if t, err := trigger.DateTime(c.location); err == nil {
			r.Alarms = append(r.Alarms, domain.Alarm{AbsoluteDate: t})
			break
		}
	}

	if prop := comp.Props.Get(ical.PropDue); prop != nil {
		if t, err := prop.DateTime(c.location); err == nil {
			r.DueDate = domain.DueDateFrom(t.In(c.location))
		}
	}

	r.MarkPersisted()
	return r, nil
}

// writeReminder copies the managed fields into a VTODO
func (c *Client) writeReminder(comp *ical.Component, r *domain.Reminder) {
	comp.Props.SetText(ical.PropSummary, r.Title)

	if r.Completed {
		comp.Props.SetText(ical.PropStatus, "COMPLETED")
		completedAt := time.Now()
		if r.CompletedAt != nil {
			completedAt = *r.CompletedAt
		}
		comp.Props.SetDateTime(ical.PropCompleted, completedAt.UTC())
	} else {
		comp.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
		delete(comp.Props, ical.PropCompleted)
	}

	delete(comp.Props, ical.PropDue)
	if r.DueDate != nil {
		comp.Props.SetDateTime(ical.PropDue, r.DueDate.Time(c.location).UTC())
	}

	children := comp.Children[:0]
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			children = append(children, child)
		}
	}
	comp.Children = children

	for _, a := range r.Alarms {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, r.Title)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.SetDateTime(a.AbsoluteDate.UTC())
		alarm.Props.Set(trigger)
		comp.Children = append(comp.Children, alarm)
	}

	now := time.Now().UTC()
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now)
	comp.Props.SetDateTime(ical.PropLastModified, now)
}

// === Change polling ===

// Fingerprint returns a digest of object paths and ETags of the calendars.
// It changes whenever any object is added, modified or removed.
func (c *Client) Fingerprint(ctx context.Context, calendarPaths ...string) (string, error) {
	client, err := c.connect()
	if err != nil {
		return "", err
	}

	var lines []string
	for _, p := range calendarPaths {
		infos, err := client.ReadDir(ctx, p, false)
		if err != nil {
			return "", fmt.Errorf("list %s: %w", p, err)
		}
		for _, fi := range infos {
			if fi.IsDir {
				continue
			}
			lines = append(lines, fi.Path+" "+fi.ETag+" "+fi.ModTime.UTC().Format(time.RFC3339))
		}
	}
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:]), nil
}
