package scheduler

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/eventme/config"
	"github.com/tazhate/eventme/internal/notify"
	"github.com/tazhate/eventme/internal/service"
)

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// ChangePoller digests the contents of remote calendars
type ChangePoller interface {
	Fingerprint(ctx context.Context, calendarPaths ...string) (string, error)
}

type Scheduler struct {
	cron      *cron.Cron
	cfg       *config.Config
	events    *service.EventManager
	reminders *service.ReminderManager
	sender    MessageSender
	poller    ChangePoller
	changes   *notify.Center
	now       func() time.Time

	mu          sync.Mutex
	lastCheck   time.Time
	fired       map[string]time.Time // reminder ID -> alarm date already sent
	fingerprint string
}

func New(cfg *config.Config, events *service.EventManager, reminders *service.ReminderManager) *Scheduler {
	location := cfg.Timezone

	c := cron.New(cron.WithLocation(location))

	return &Scheduler{
		cron:      c,
		cfg:       cfg,
		events:    events,
		reminders: reminders,
		now:       time.Now,
		fired:     make(map[string]time.Time),
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

// SetPoller enables polling a remote store and publishing on changes
func (s *Scheduler) SetPoller(poller ChangePoller, changes *notify.Center) {
	s.poller = poller
	s.changes = changes
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Alarm delivery
	if _, err := s.cron.AddFunc(s.cfg.AlarmSchedule, func() { s.checkAlarms(ctx) }); err != nil {
		return fmt.Errorf("add alarm check: %w", err)
	}

	// External changes of a remote store
	if s.poller != nil {
		pollSpec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
		if _, err := s.cron.AddFunc(pollSpec, func() { s.pollChanges(ctx) }); err != nil {
			return fmt.Errorf("add change poll: %w", err)
		}
		s.pollChanges(ctx)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, alarms: %s, polling: %v)",
		s.cfg.Timezone, s.cfg.AlarmSchedule, s.poller != nil)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

// checkAlarms sends every alarm that fell due since the previous check
func (s *Scheduler) checkAlarms(ctx context.Context) {
	if s.sender == nil {
		return
	}

	now := s.now()
	s.mu.Lock()
	after := s.lastCheck
	if after.IsZero() {
		after = now.Add(-time.Minute)
	}
	s.mu.Unlock()

	due, err := s.reminders.DueAlarms(ctx, after, now)
	if err != nil {
		log.Printf("Error getting due alarms: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = now

	for _, r := range due {
		date, _ := r.AlarmDate()
		if sent, ok := s.fired[r.ID]; ok && sent.Equal(date) {
			continue
		}

		text := fmt.Sprintf("🔔 <b>Reminder</b>\n\n%s\n\n/reminders", html.EscapeString(r.Title))
		if err := s.sender.SendMessage(s.cfg.OwnerTelegramID, text); err != nil {
			log.Printf("Error sending alarm of %s: %v", r.ID, err)
			continue
		}
		s.fired[r.ID] = date
	}

	for id, date := range s.fired {
		if now.Sub(date) > 24*time.Hour {
			delete(s.fired, id)
		}
	}
}

// pollChanges publishes a change signal when the remote calendars differ
// from the previous poll. The first poll only records the baseline.
func (s *Scheduler) pollChanges(ctx context.Context) {
	var paths []string
	if cal, err := s.events.Calendar(ctx); err != nil {
		log.Printf("Error locating event calendar: %v", err)
	} else if cal != nil {
		paths = append(paths, cal.ID)
	}
	if cal, err := s.reminders.Calendar(ctx); err != nil {
		log.Printf("Error locating reminder list: %v", err)
	} else if cal != nil {
		paths = append(paths, cal.ID)
	}
	if len(paths) == 0 {
		return
	}

	fp, err := s.poller.Fingerprint(ctx, paths...)
	if err != nil {
		log.Printf("Error polling calendars: %v", err)
		return
	}

	s.mu.Lock()
	prev := s.fingerprint
	s.fingerprint = fp
	s.mu.Unlock()

	if prev != "" && prev != fp {
		log.Printf("Calendar changed remotely")
		if s.changes != nil {
			s.changes.Publish()
		}
	}
}
