package screen

import (
	"context"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/service"
)

// ReminderDetail edits one reminder. The alarm date control keeps its
// value while "remind me" is off.
type ReminderDetail struct {
	store     ReminderStore
	reminder  *domain.Reminder
	alarmDate time.Time
	err       error
}

// OpenReminderDetail opens r for editing, or a new draft if r is nil
func OpenReminderDetail(ctx context.Context, store ReminderStore, r *domain.Reminder) (*ReminderDetail, error) {
	d := &ReminderDetail{store: store, reminder: r}
	if r == nil {
		draft, err := store.CreateReminder(ctx)
		if err != nil {
			return nil, err
		}
		if draft == nil {
			return nil, ErrUnavailable
		}
		d.reminder = draft
	}
	if date, ok := d.reminder.AlarmDate(); ok {
		d.alarmDate = date
	} else {
		d.alarmDate = domain.NextHour(store.Now())
	}
	return d, nil
}

// Reminder returns the record being edited
func (d *ReminderDetail) Reminder() *domain.Reminder {
	return d.reminder
}

// IsNew reports whether the record was never saved
func (d *ReminderDetail) IsNew() bool {
	return d.reminder.IsNew()
}

// Title returns the title
func (d *ReminderDetail) Title() string {
	return d.reminder.Title
}

// SetTitle sets the title
func (d *ReminderDetail) SetTitle(s string) {
	d.reminder.Title = s
}

// Remind reports whether "remind me" is on
func (d *ReminderDetail) Remind() bool {
	return d.reminder.HasAlarm()
}

// SetRemind adds an alarm at the default date, or removes the alarm and due date
func (d *ReminderDetail) SetRemind(on bool) {
	if on == d.reminder.HasAlarm() {
		return
	}
	if on {
		d.alarmDate = domain.NextHour(d.store.Now())
		d.reminder.AddAlarm(d.alarmDate)
	} else {
		d.reminder.RemoveAlarm()
	}
}

// AlarmDate returns the alarm date control value
func (d *ReminderDetail) AlarmDate() time.Time {
	return d.alarmDate
}

// SetAlarmDate moves the alarm. Without an alarm only the control changes.
func (d *ReminderDetail) SetAlarmDate(t time.Time) {
	d.alarmDate = t
	d.reminder.SetAlarmDate(t)
}

// CanSave reports whether Done is enabled
func (d *ReminderDetail) CanSave() bool {
	return canSave(d.reminder.Title, d.reminder.HasChanges())
}

// Save commits the reminder. The failure is also kept for Err.
func (d *ReminderDetail) Save(ctx context.Context) error {
	d.err = d.save(ctx)
	return d.err
}

func (d *ReminderDetail) save(ctx context.Context) error {
	if !d.CanSave() {
		return ErrCannotSave
	}
	if !d.store.IsAccessGranted(ctx) {
		return service.ErrAccessDenied
	}
	return d.store.SaveReminder(ctx, d.reminder)
}

// Err returns the last save failure
func (d *ReminderDetail) Err() error {
	return d.err
}

// DismissErr clears the last save failure
func (d *ReminderDetail) DismissErr() {
	d.err = nil
}
