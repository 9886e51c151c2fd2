package screen

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/service"
)

var (
	// ErrUnavailable is returned when the store cannot hand out a draft
	ErrUnavailable = errors.New("calendar is not available")
	// ErrCannotSave is returned by Save when the title is empty or nothing changed
	ErrCannotSave = errors.New("nothing to save")
	// ErrEndBeforeStart is returned by Save for a timed event ending before it starts
	ErrEndBeforeStart = errors.New("event ends before it starts")
)

// canSave is the Done-button rule shared by both detail screens
func canSave(title string, changed bool) bool {
	return changed && strings.TrimSpace(title) != ""
}

// EventDetail edits one event. Setters write through to the record.
type EventDetail struct {
	store EventStore
	event *domain.Event
	err   error
}

// OpenEventDetail opens e for editing, or a new draft in the default window if e is nil
func OpenEventDetail(ctx context.Context, store EventStore, e *domain.Event) (*EventDetail, error) {
	if e == nil {
		draft, err := store.CreateEvent(ctx)
		if err != nil {
			return nil, err
		}
		if draft == nil {
			return nil, ErrUnavailable
		}
		draft.Start, draft.End = domain.DefaultWindow(store.Now())
		e = draft
	}
	return &EventDetail{store: store, event: e}, nil
}

// Event returns the record being edited
func (d *EventDetail) Event() *domain.Event {
	return d.event
}

// IsNew reports whether the record was never saved
func (d *EventDetail) IsNew() bool {
	return d.event.IsNew()
}

func (d *EventDetail) Title() string { return d.event.Title }
func (d *EventDetail) AllDay() bool { return d.event.AllDay }
func (d *EventDetail) Start() time.Time { return d.event.Start }
func (d *EventDetail) End() time.Time { return d.event.End }
func (d *EventDetail) SetTitle(s string) { d.event.Title = s }
func (d *EventDetail) SetStart(t time.Time) { d.event.Start = t }
func (d *EventDetail) SetEnd(t time.Time) { d.event.End = t }

// SetAllDay switches all-day. Switching it off restores the default one hour window.
func (d *EventDetail) SetAllDay(on bool) {
	d.event.AllDay = on
	if !on {
		d.event.Start, d.event.End = domain.DefaultWindow(d.store.Now())
	}
}

// CanSave reports whether Done is enabled
func (d *EventDetail) CanSave() bool {
	return canSave(d.event.Title, d.event.HasChanges())
}

// Save commits the event. The failure is also kept for Err.
func (d *EventDetail) Save(ctx context.Context) error {
	d.err = d.save(ctx)
	return d.err
}

func (d *EventDetail) save(ctx context.Context) error {
	if !d.CanSave() {
		return ErrCannotSave
	}
	if !d.store.IsAccessGranted(ctx) {
		return service.ErrAccessDenied
	}
	if d.event.AllDay {
		d.event.NormalizeAllDay()
	} else if d.event.End.Before(d.event.Start) {
		return ErrEndBeforeStart
	}
	return d.store.SaveEvent(ctx, d.event)
}

// Err returns the last save failure
func (d *EventDetail) Err() error {
	return d.err
}

// DismissErr clears the last save failure
func (d *EventDetail) DismissErr() {
	d.err = nil
}
