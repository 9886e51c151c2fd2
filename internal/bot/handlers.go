package bot

import (
	"errors"
	"html"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/screen"
	"github.com/tazhate/eventme/internal/service"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(userID) {
		b.SendMessage(chatID, "⛔ Access denied")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	s := b.sessions.get(chatID)
	if input := s.takePending(); input != inputNone {
		b.handleInput(s, input, text)
		return
	}

	// Plain text becomes a new reminder
	if err := b.openReminderDetailScreen(s, nil, text); err != nil {
		b.SendMessage(chatID, "❌ "+userError(err))
	}
}

// handleInput applies text typed for a detail field
func (b *Bot) handleInput(s *session, input, text string) {
	var inputErr error
	s.queue.Sync(func() {
		ed, rd, _ := s.detail()
		switch {
		case ed != nil:
			inputErr = b.applyEventInput(ed, input, text)
		case rd != nil:
			inputErr = b.applyReminderInput(rd, input, text)
		default:
			return
		}
		if inputErr != nil {
			s.setPending(input)
			return
		}
		b.drawDetail(s, inputNone)
	})
	if inputErr != nil {
		b.SendMessage(s.chatID, "❌ "+inputErr.Error())
	}
}

func (b *Bot) applyEventInput(d *screen.EventDetail, input, text string) error {
	switch input {
	case inputTitle:
		d.SetTitle(text)
	case inputStart, inputEnd:
		t, err := parseDateTime(text, b.events.Location(), d.AllDay())
		if err != nil {
			return err
		}
		if input == inputStart {
			d.SetStart(t)
		} else if d.AllDay() {
			// The typed day is the last day of the event
			d.SetEnd(domain.StartOfDay(t).AddDate(0, 0, 1))
		} else {
			d.SetEnd(t)
		}
	}
	return nil
}

func (b *Bot) applyReminderInput(d *screen.ReminderDetail, input, text string) error {
	switch input {
	case inputTitle:
		d.SetTitle(text)
	case inputAlarm:
		t, err := parseDateTime(text, b.reminders.Location(), false)
		if err != nil {
			return err
		}
		d.SetAlarmDate(t)
	}
	return nil
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	if !b.cfg.IsAllowedUser(userID) || callback.Message == nil {
		b.answer(callback.ID, "⛔ Access denied")
		return
	}

	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID
	parts := strings.Split(callback.Data, ":")
	s := b.sessions.get(chatID)

	switch parts[0] {
	case "access":
		// access:type:allow|deny
		if len(parts) < 3 {
			return
		}
		b.handleAccessAnswer(callback, domain.EntityType(parts[1]), parts[2] == "allow")

	case "ev":
		b.handleEventListCallback(callback, s, msgID, parts[1:])

	case "rm":
		b.handleReminderListCallback(callback, s, msgID, parts[1:])

	case "evd", "rmd":
		if len(parts) < 2 {
			return
		}
		b.handleDetailCallback(callback, s, msgID, parts[1])

	default:
		b.answer(callback.ID, "")
	}
}

func (b *Bot) handleAccessAnswer(callback *tgbotapi.CallbackQuery, typ domain.EntityType, granted bool) {
	if !b.prompts.resolve(typ, granted) {
		b.answer(callback.ID, "This request has expired")
		return
	}

	text := typ.Emoji() + " Access to " + typ.Plural() + " granted"
	if !granted {
		text = "🚫 Access to " + typ.Plural() + " denied"
	}
	edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing access prompt: %v", err)
	}
	b.answer(callback.ID, "")
}

// rowRef parses "gen:index" of a row button
func rowRef(parts []string) (uint64, int, bool) {
	if len(parts) < 2 {
		return 0, 0, false
	}
	gen, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return gen, i, true
}

func (b *Bot) handleEventListCallback(callback *tgbotapi.CallbackQuery, s *session, msgID int, parts []string) {
	if len(parts) == 0 {
		return
	}

	list := s.currentEventList()
	if list == nil || msgID != listMsgID(s) {
		// The list behind this message was closed; reopen it in place
		b.answer(callback.ID, "")
		b.openEventList(s, msgID)
		return
	}

	switch parts[0] {
	case "refresh":
		b.answer(callback.ID, "🔄")
		if list.State() == screen.StateUnauthorized {
			b.openEventList(s, msgID)
			return
		}
		if err := list.Refresh(s.ctx); err != nil {
			log.Printf("Error refreshing events: %v", err)
		}

	case "page":
		if len(parts) < 2 {
			return
		}
		page, _ := strconv.Atoi(parts[1])
		s.setListPage(page)
		s.queue.Sync(func() { b.drawEventList(s, list) })
		b.answer(callback.ID, "")

	case "new":
		if err := b.openEventDetailScreen(s, nil, ""); err != nil {
			b.answer(callback.ID, "❌ "+userError(err))
			return
		}
		b.answer(callback.ID, "")

	case "open", "del":
		gen, i, ok := rowRef(parts[1:])
		if !ok {
			return
		}
		if gen != list.Generation() {
			b.answer(callback.ID, "The list has changed")
			s.queue.Sync(func() { b.drawEventList(s, list) })
			return
		}
		e := list.At(i)
		if e == nil {
			b.answer(callback.ID, "Not found")
			return
		}

		if parts[0] == "del" {
			if err := list.Delete(s.ctx, i); err != nil {
				log.Printf("Error deleting event: %v", err)
				b.answer(callback.ID, "❌ "+userError(err))
				return
			}
			b.answer(callback.ID, "🗑 Deleted")
			return
		}

		// Edit a copy so the row keeps its fetched values
		cp := *e
		if err := b.openEventDetailScreen(s, &cp, ""); err != nil {
			b.answer(callback.ID, "❌ "+userError(err))
			return
		}
		b.answer(callback.ID, "")
	}
}

func (b *Bot) handleReminderListCallback(callback *tgbotapi.CallbackQuery, s *session, msgID int, parts []string) {
	if len(parts) == 0 {
		return
	}

	list := s.currentReminderList()
	if list == nil || msgID != listMsgID(s) {
		b.answer(callback.ID, "")
		b.openReminderList(s, msgID)
		return
	}

	switch parts[0] {
	case "refresh":
		b.answer(callback.ID, "🔄")
		if list.State() == screen.StateUnauthorized {
			b.openReminderList(s, msgID)
			return
		}
		if err := list.Refresh(s.ctx); err != nil {
			log.Printf("Error refreshing reminders: %v", err)
		}

	case "seg":
		if len(parts) < 2 {
			return
		}
		seg, _ := strconv.Atoi(parts[1])
		list.SetSegment(screen.Segment(seg))
		s.setListPage(0)
		s.queue.Sync(func() { b.drawReminderList(s, list) })
		b.answer(callback.ID, "")

	case "page":
		if len(parts) < 2 {
			return
		}
		page, _ := strconv.Atoi(parts[1])
		s.setListPage(page)
		s.queue.Sync(func() { b.drawReminderList(s, list) })
		b.answer(callback.ID, "")

	case "new":
		if err := b.openReminderDetailScreen(s, nil, ""); err != nil {
			b.answer(callback.ID, "❌ "+userError(err))
			return
		}
		b.answer(callback.ID, "")

	case "open", "del", "toggle":
		gen, i, ok := rowRef(parts[1:])
		if !ok {
			return
		}
		if gen != list.Generation() {
			b.answer(callback.ID, "The list has changed")
			s.queue.Sync(func() { b.drawReminderList(s, list) })
			return
		}
		r := list.At(i)
		if r == nil {
			b.answer(callback.ID, "Not found")
			return
		}

		switch parts[0] {
		case "del":
			if err := list.Delete(s.ctx, i); err != nil {
				log.Printf("Error deleting reminder: %v", err)
				b.answer(callback.ID, "❌ "+userError(err))
				return
			}
			b.answer(callback.ID, "🗑 Deleted")
		case "toggle":
			if err := list.ToggleCompleted(s.ctx, i); err != nil {
				log.Printf("Error toggling reminder: %v", err)
				b.answer(callback.ID, "❌ "+userError(err))
				return
			}
			b.answer(callback.ID, "")
		default:
			cp := *r
			cp.Alarms = append([]domain.Alarm(nil), r.Alarms...)
			if err := b.openReminderDetailScreen(s, &cp, ""); err != nil {
				b.answer(callback.ID, "❌ "+userError(err))
				return
			}
			b.answer(callback.ID, "")
		}
	}
}

func (b *Bot) handleDetailCallback(callback *tgbotapi.CallbackQuery, s *session, msgID int, action string) {
	var (
		notice string
		closed bool
	)

	s.queue.Sync(func() {
		ed, rd, detailMsgID := s.detail()
		if (ed == nil && rd == nil) || detailMsgID != msgID {
			closed = true
			return
		}

		pending := inputNone
		switch action {
		case "title":
			pending = inputTitle
		case "start":
			pending = inputStart
		case "end":
			pending = inputEnd
		case "alarm":
			pending = inputAlarm
		case "allday":
			if ed != nil {
				ed.SetAllDay(!ed.AllDay())
			}
		case "remind":
			if rd != nil {
				rd.SetRemind(!rd.Remind())
			}
		case "back":
			b.dismissDetail(s, "✖️ Cancelled")
			return
		case "done":
			var err error
			var title string
			if ed != nil {
				err = ed.Save(s.ctx)
				title = ed.Title()
			} else {
				err = rd.Save(s.ctx)
				title = rd.Title()
			}
			if err != nil {
				log.Printf("Error saving: %v", err)
				notice = "❌ " + userError(err)
				break
			}
			b.dismissDetail(s, "✅ Saved: <b>"+html.EscapeString(title)+"</b>")
			return
		}

		s.setPending(pending)
		b.drawDetail(s, pending)
	})

	if closed {
		b.answer(callback.ID, "This screen is closed")
		return
	}
	b.answer(callback.ID, notice)
}

func listMsgID(s *session) int {
	msgID, _ := s.listMessage()
	return msgID
}

// userError turns screen and store failures into a short message for the owner
func userError(err error) string {
	switch {
	case errors.Is(err, service.ErrAccessDenied):
		return "No access to the calendar"
	case errors.Is(err, screen.ErrUnavailable):
		return "The calendar is not available"
	case errors.Is(err, screen.ErrEndBeforeStart):
		return "The event ends before it starts"
	case errors.Is(err, screen.ErrCannotSave):
		return "Nothing to save"
	case errors.Is(err, service.ErrCommit):
		return "Could not save to the calendar"
	case errors.Is(err, screen.ErrNoRow):
		return "Not found"
	default:
		return err.Error()
	}
}
