package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/screen"
)

const perPage = 8

// Access prompt keyboard
func accessKeyboard(typ domain.EntityType) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Allow", fmt.Sprintf("access:%s:allow", typ)),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Don't allow", fmt.Sprintf("access:%s:deny", typ)),
		),
	)
}

// pageBounds clamps page and returns it with the slice bounds of its rows
func pageBounds(total, page int) (int, int, int) {
	pages := (total + perPage - 1) / perPage
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	start := page * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	return page, start, end
}

func navRow(prefix string, total, page int) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("%s:page:%d", prefix, page-1)))
	}
	totalPages := (total + perPage - 1) / perPage
	if page < totalPages-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("%s:page:%d", prefix, page+1)))
	}
	return row
}

// Event list keyboard. Rows are addressed by list generation and index.
func eventListKeyboard(events []*domain.Event, gen uint64, page int, addEnabled bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	page, start, end := pageBounds(len(events), page)
	for i := start; i < end; i++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%d. %s", i+1, truncate(displayTitle(events[i].Title), 28)),
				fmt.Sprintf("ev:open:%d:%d", gen, i),
			),
			tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("ev:del:%d:%d", gen, i)),
		))
	}

	if nav := navRow("ev", len(events), page); len(nav) > 0 {
		rows = append(rows, nav)
	}

	var actions []tgbotapi.InlineKeyboardButton
	if addEnabled {
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("➕ Add", "ev:new"))
	}
	actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "ev:refresh"))
	rows = append(rows, actions)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Reminder list keyboard with the segment switch on top
func reminderListKeyboard(reminders []*domain.Reminder, segment screen.Segment, gen uint64, page int, addEnabled bool) tgbotapi.InlineKeyboardMarkup {
	incomplete, completed := "Incomplete", "Completed"
	if segment == screen.SegmentCompleted {
		completed = "• " + completed
	} else {
		incomplete = "• " + incomplete
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(incomplete, fmt.Sprintf("rm:seg:%d", screen.SegmentIncomplete)),
			tgbotapi.NewInlineKeyboardButtonData(completed, fmt.Sprintf("rm:seg:%d", screen.SegmentCompleted)),
		),
	}

	page, start, end := pageBounds(len(reminders), page)
	for i := start; i < end; i++ {
		r := reminders[i]
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.StatusEmoji(), fmt.Sprintf("rm:toggle:%d:%d", gen, i)),
			tgbotapi.NewInlineKeyboardButtonData(truncate(displayTitle(r.Title), 28), fmt.Sprintf("rm:open:%d:%d", gen, i)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("rm:del:%d:%d", gen, i)),
		))
	}

	if nav := navRow("rm", len(reminders), page); len(nav) > 0 {
		rows = append(rows, nav)
	}

	var actions []tgbotapi.InlineKeyboardButton
	if addEnabled {
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("➕ Add", "rm:new"))
	}
	actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "rm:refresh"))
	rows = append(rows, actions)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Event detail keyboard. Done is shown only when the event can be saved.
func eventDetailKeyboard(d *screen.EventDetail) tgbotapi.InlineKeyboardMarkup {
	allDay := "⬜ All day"
	if d.AllDay() {
		allDay = "✅ All day"
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Title", "evd:title"),
			tgbotapi.NewInlineKeyboardButtonData(allDay, "evd:allday"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕐 Starts", "evd:start"),
			tgbotapi.NewInlineKeyboardButtonData("🕔 Ends", "evd:end"),
		),
	}
	rows = append(rows, detailActions("evd", d.CanSave()))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Reminder detail keyboard. The alarm date button is shown only with "remind me" on.
func reminderDetailKeyboard(d *screen.ReminderDetail) tgbotapi.InlineKeyboardMarkup {
	remind := "⬜ Remind me"
	if d.Remind() {
		remind = "✅ Remind me"
	}

	firstRow := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Title", "rmd:title"),
		tgbotapi.NewInlineKeyboardButtonData(remind, "rmd:remind"),
	)
	rows := [][]tgbotapi.InlineKeyboardButton{firstRow}
	if d.Remind() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Alarm", "rmd:alarm"),
		))
	}
	rows = append(rows, detailActions("rmd", d.CanSave()))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func detailActions(prefix string, canSave bool) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	if canSave {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ Done", prefix+":done"))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", prefix+":back"))
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
