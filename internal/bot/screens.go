package bot

import (
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/screen"
)

// openEventList shows the events list in msgID (or a new message) and keeps
// it in sync with the store until another list replaces it.
func (b *Bot) openEventList(s *session, msgID int) {
	list := screen.NewEventList(b.events, s.queue)
	ctx := s.openList(list, nil, msgID)
	list.OnChange(func() { b.drawEventList(s, list) })

	changes, unsubscribe := b.changes.Subscribe()
	go func() {
		defer unsubscribe()
		list.Watch(ctx, changes)
	}()

	err := list.Load(ctx)
	if err != nil {
		log.Printf("Error loading events: %v", err)
		b.SendMessage(s.chatID, "❌ Could not load events")
	}
	if err != nil || list.State() == screen.StateUnauthorized {
		s.queue.Sync(func() { b.drawEventList(s, list) })
	}
}

func (b *Bot) openReminderList(s *session, msgID int) {
	list := screen.NewReminderList(b.reminders, s.queue)
	ctx := s.openList(nil, list, msgID)
	list.OnChange(func() { b.drawReminderList(s, list) })

	changes, unsubscribe := b.changes.Subscribe()
	go func() {
		defer unsubscribe()
		list.Watch(ctx, changes)
	}()

	err := list.Load(ctx)
	if err != nil {
		log.Printf("Error loading reminders: %v", err)
		b.SendMessage(s.chatID, "❌ Could not load reminders")
	}
	if err != nil || list.State() == screen.StateUnauthorized {
		s.queue.Sync(func() { b.drawReminderList(s, list) })
	}
}

// drawEventList runs on the session queue
func (b *Bot) drawEventList(s *session, list *screen.EventList) {
	if s.currentEventList() != list {
		return
	}
	gen := list.Generation()
	events := list.Events()
	msgID, page := s.listMessage()
	page, _, _ = pageBounds(len(events), page)

	var kb tgbotapi.InlineKeyboardMarkup
	if list.State() == screen.StateUnauthorized {
		kb = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "ev:refresh"),
		))
	} else {
		kb = eventListKeyboard(events, gen, page, list.AddEnabled())
	}
	s.setListMessage(b.show(s.chatID, msgID, eventListText(list, events, page, b.events.Now()), kb))
}

// drawReminderList runs on the session queue
func (b *Bot) drawReminderList(s *session, list *screen.ReminderList) {
	if s.currentReminderList() != list {
		return
	}
	gen := list.Generation()
	incomplete, completed := list.Reminders()
	rows := incomplete
	if list.Segment() == screen.SegmentCompleted {
		rows = completed
	}
	msgID, page := s.listMessage()
	page, _, _ = pageBounds(len(rows), page)

	var kb tgbotapi.InlineKeyboardMarkup
	if list.State() == screen.StateUnauthorized {
		kb = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "rm:refresh"),
		))
	} else {
		kb = reminderListKeyboard(rows, list.Segment(), gen, page, list.AddEnabled())
	}
	s.setListMessage(b.show(s.chatID, msgID, reminderListText(list, rows, page, b.reminders.Now()), kb))
}

// openEventDetailScreen opens e, or a new draft if e is nil, in a new message
func (b *Bot) openEventDetailScreen(s *session, e *domain.Event, title string) error {
	d, err := screen.OpenEventDetail(s.ctx, b.events, e)
	if err != nil {
		return err
	}
	pending := inputNone
	if d.IsNew() {
		if title != "" {
			d.SetTitle(title)
		} else {
			pending = inputTitle
		}
	}
	s.queue.Sync(func() {
		s.openEventDetail(d, 0)
		s.setPending(pending)
		b.drawDetail(s, pending)
	})
	return nil
}

func (b *Bot) openReminderDetailScreen(s *session, r *domain.Reminder, title string) error {
	d, err := screen.OpenReminderDetail(s.ctx, b.reminders, r)
	if err != nil {
		return err
	}
	pending := inputNone
	if d.IsNew() {
		if title != "" {
			d.SetTitle(title)
		} else {
			pending = inputTitle
		}
	}
	s.queue.Sync(func() {
		s.openReminderDetail(d, 0)
		s.setPending(pending)
		b.drawDetail(s, pending)
	})
	return nil
}

// drawDetail runs on the session queue
func (b *Bot) drawDetail(s *session, pending string) {
	ed, rd, msgID := s.detail()
	switch {
	case ed != nil:
		s.setDetailMessage(b.show(s.chatID, msgID, eventDetailText(ed, pending), eventDetailKeyboard(ed)))
	case rd != nil:
		s.setDetailMessage(b.show(s.chatID, msgID, reminderDetailText(rd, pending), reminderDetailKeyboard(rd)))
	}
}

// dismissDetail closes the detail screen and replaces its message with text
func (b *Bot) dismissDetail(s *session, text string) {
	msgID := s.closeDetail()
	if msgID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(s.chatID, msgID, text)
	edit.ParseMode = "HTML"
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error closing detail message: %v", err)
	}
}
