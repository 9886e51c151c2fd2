package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/notify"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record to update or remove does not exist
var ErrNotFound = errors.New("not found")

type Storage struct {
	db      *sql.DB
	changes *notify.Center
}

// New opens the database and runs migrations. changes may be nil.
func New(dbPath string, changes *notify.Center) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, changes: changes}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calendars (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendars_type ON calendars(entity_type)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			calendar_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			all_day INTEGER DEFAULT 0,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_calendar ON events(calendar_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			calendar_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			completed INTEGER DEFAULT 0,
			completed_at DATETIME,
			due_date TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (calendar_id) REFERENCES calendars(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_calendar ON reminders(calendar_id)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reminder_id TEXT NOT NULL,
			absolute_date DATETIME NOT NULL,
			FOREIGN KEY (reminder_id) REFERENCES reminders(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_reminder ON alarms(reminder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_date ON alarms(absolute_date)`,
		`CREATE TABLE IF NOT EXISTS access_grants (
			entity_type TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			decided_at DATETIME
		)`,
		// Recurring events
		`ALTER TABLE events ADD COLUMN rrule TEXT DEFAULT ''`,
		`ALTER TABLE events ADD COLUMN exdates TEXT DEFAULT '[]'`,
		`CREATE INDEX IF NOT EXISTS idx_events_rrule ON events(rrule)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

func (s *Storage) publish() {
	if s.changes != nil {
		s.changes.Publish()
	}
}

// dbTime normalizes a time so that stored values compare correctly as text
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// === Calendars ===

// Calendars returns all calendars of the given type
func (s *Storage) Calendars(ctx context.Context, typ domain.EntityType) ([]domain.Calendar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, entity_type FROM calendars WHERE entity_type = ? ORDER BY created_at, id`,
		typ,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cals []domain.Calendar
	for rows.Next() {
		var c domain.Calendar
		if err := rows.Scan(&c.ID, &c.Title, &c.Type); err != nil {
			return nil, err
		}
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

// CreateCalendar stores a new calendar, assigning its ID if empty
func (s *Storage) CreateCalendar(ctx context.Context, c *domain.Calendar) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendars (id, title, entity_type) VALUES (?, ?, ?)`,
		c.ID, c.Title, c.Type,
	)
	if err != nil {
		return err
	}
	s.publish()
	return nil
}

// === Events ===

const eventColumns = `id, calendar_id, title, all_day, start_time, end_time, rrule, exdates, created_at, updated_at`

func scanEvent(sc interface{ Scan(...any) error }) (*domain.Event, error) {
	e := &domain.Event{}
	var exdates string
	if err := sc.Scan(&e.ID, &e.CalendarID, &e.Title, &e.AllDay, &e.Start, &e.End, &e.RRule, &exdates, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if exdates != "" {
		if err := json.Unmarshal([]byte(exdates), &e.ExDates); err != nil {
			return nil, fmt.Errorf("parse exdates of %s: %w", e.ID, err)
		}
	}
	e.MarkPersisted()
	return e, nil
}

// EventsInRange returns single events of the calendar that overlap [from, to)
// and every recurring master that starts before to.
func (s *Storage) EventsInRange(ctx context.Context, calendarID string, from, to time.Time) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE calendar_id = ? AND start_time < ?
		   AND (rrule != '' OR end_time > ? OR (end_time <= start_time AND start_time >= ?))
		 ORDER BY start_time, id`,
		calendarID, dbTime(to), dbTime(from), dbTime(from),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns an event by ID, or nil if it does not exist
func (s *Storage) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// SaveEvent inserts or replaces an event and commits
func (s *Storage) SaveEvent(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	exdates := make([]time.Time, 0, len(e.ExDates))
	for _, d := range e.ExDates {
		exdates = append(exdates, d.UTC())
	}
	exJSON, err := json.Marshal(exdates)
	if err != nil {
		return fmt.Errorf("encode exdates: %w", err)
	}

	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, calendar_id, title, all_day, start_time, end_time, rrule, exdates, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			title = excluded.title,
			all_day = excluded.all_day,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			rrule = excluded.rrule,
			exdates = excluded.exdates,
			updated_at = excluded.updated_at`,
		e.ID, e.CalendarID, e.Title, e.AllDay, dbTime(e.Start), dbTime(e.End), e.RRule, string(exJSON), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}

	e.MarkPersisted()
	s.publish()
	return nil
}

// RemoveEvent deletes an event and commits
func (s *Storage) RemoveEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	s.publish()
	return nil
}

// === Reminders ===

type dueDateJSON struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func encodeDueDate(d *domain.DueDate) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(dueDateJSON{d.Year, int(d.Month), d.Day, d.Hour, d.Minute})
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeDueDate(s sql.NullString) (*domain.DueDate, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var d dueDateJSON
	if err := json.Unmarshal([]byte(s.String), &d); err != nil {
		return nil, err
	}
	return &domain.DueDate{Year: d.Year, Month: time.Month(d.Month), Day: d.Day, Hour: d.Hour, Minute: d.Minute}, nil
}

const reminderColumns = `id, calendar_id, title, completed, completed_at, due_date, created_at, updated_at`

func scanReminder(sc interface{ Scan(...any) error }) (*domain.Reminder, error) {
	r := &domain.Reminder{}
	var due sql.NullString
	if err := sc.Scan(&r.ID, &r.CalendarID, &r.Title, &r.Completed, &r.CompletedAt, &due, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decodeDueDate(due)
	if err != nil {
		return nil, fmt.Errorf("parse due date of %s: %w", r.ID, err)
	}
	r.DueDate = d
	return r, nil
}

// Reminders returns every reminder in the list, oldest first
func (s *Storage) Reminders(ctx context.Context, calendarID string) ([]*domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE calendar_id = ? ORDER BY created_at, id`,
		calendarID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	byID := make(map[string]*domain.Reminder)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadAlarms(ctx, calendarID, byID); err != nil {
		return nil, err
	}
	for _, r := range reminders {
		r.MarkPersisted()
	}
	return reminders, nil
}

func (s *Storage) loadAlarms(ctx context.Context, calendarID string, byID map[string]*domain.Reminder) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.reminder_id, a.absolute_date FROM alarms a
		 JOIN reminders r ON r.id = a.reminder_id
		 WHERE r.calendar_id = ? ORDER BY a.id`,
		calendarID,
	)
	if err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return err
		}
		if r, ok := byID[id]; ok {
			r.Alarms = append(r.Alarms, domain.Alarm{AbsoluteDate: at})
		}
	}
	return rows.Err()
}

// GetReminder returns a reminder by ID, or nil if it does not exist
func (s *Storage) GetReminder(ctx context.Context, id string) (*domain.Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT absolute_date FROM alarms WHERE reminder_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load alarms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		r.Alarms = append(r.Alarms, domain.Alarm{AbsoluteDate: at})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.MarkPersisted()
	return r, nil
}

// SaveReminder inserts or replaces a reminder with its alarms in one transaction
func (s *Storage) SaveReminder(ctx context.Context, r *domain.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	due, err := encodeDueDate(r.DueDate)
	if err != nil {
		return fmt.Errorf("encode due date: %w", err)
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	var completedAt *time.Time
	if r.CompletedAt != nil {
		t := dbTime(*r.CompletedAt)
		completedAt = &t
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reminders (id, calendar_id, title, completed, completed_at, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			title = excluded.title,
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			due_date = excluded.due_date,
			updated_at = excluded.updated_at`,
		r.ID, r.CalendarID, r.Title, r.Completed, completedAt, due, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reminder: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM alarms WHERE reminder_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear alarms: %w", err)
	}
	for _, a := range r.Alarms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alarms (reminder_id, absolute_date) VALUES (?, ?)`,
			r.ID, dbTime(a.AbsoluteDate),
		); err != nil {
			return fmt.Errorf("insert alarm: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.MarkPersisted()
	s.publish()
	return nil
}

// RemoveReminder deletes a reminder and its alarms
func (s *Storage) RemoveReminder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	s.publish()
	return nil
}

// === Access grants ===

// AccessStatus returns the stored decision for the entity type
func (s *Storage) AccessStatus(ctx context.Context, typ domain.EntityType) (domain.AuthorizationStatus, error) {
	var status domain.AuthorizationStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM access_grants WHERE entity_type = ?`, typ,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.StatusNotDetermined, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// SetAccessStatus stores the decision for the entity type
func (s *Storage) SetAccessStatus(ctx context.Context, typ domain.EntityType, status domain.AuthorizationStatus) error {
	var decidedAt *time.Time
	if status.IsDecided() {
		now := time.Now()
		decidedAt = &now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_grants (entity_type, status, decided_at) VALUES (?, ?, ?)
		 ON CONFLICT(entity_type) DO UPDATE SET status = excluded.status, decided_at = excluded.decided_at`,
		typ, status, decidedAt,
	)
	return err
}
