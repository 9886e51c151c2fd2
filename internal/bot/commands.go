package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/eventme/internal/domain"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	s := b.sessions.get(chatID)

	switch cmd {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.cmdHelp(chatID)
	case "events":
		b.openEventList(s, 0)
	case "reminders":
		b.openReminderList(s, 0)
	case "newevent":
		if err := b.openEventDetailScreen(s, nil, args); err != nil {
			b.SendMessage(chatID, "❌ "+userError(err))
		}
	case "newreminder":
		if err := b.openReminderDetailScreen(s, nil, args); err != nil {
			b.SendMessage(chatID, "❌ "+userError(err))
		}
	case "access":
		b.cmdAccess(chatID)
	case "revoke":
		b.cmdSetAccess(chatID, args, b.access.Revoke, "🚫 Access revoked for")
	case "reset_access":
		b.cmdSetAccess(chatID, args, b.access.Reset, "🔄 You will be asked again for")
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list of commands")
	}
}

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	name := msg.From.FirstName
	b.SendMessage(msg.Chat.ID, fmt.Sprintf("👋 Hi, %s!\n\nI keep your events and reminders in the %q calendar.\n\n/help for the list of commands", name, b.cfg.CalendarTitle))
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Events</b>
/events — events of this month
/newevent title — new event

<b>Reminders</b>
/reminders — reminders list
/newreminder title — new reminder

<b>Access</b>
/access — current access
/revoke events|reminders — revoke access
/reset_access events|reminders — ask again

💡 Just send text to create a reminder`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdAccess(chatID int64) {
	ctx := context.Background()
	var sb strings.Builder
	sb.WriteString("<b>Access</b>\n\n")
	for _, typ := range []domain.EntityType{domain.EntityEvent, domain.EntityReminder} {
		status, err := b.access.Status(ctx, typ)
		if err != nil {
			log.Printf("Error getting access status: %v", err)
			b.SendMessage(chatID, "❌ Could not read access status")
			return
		}
		sb.WriteString(fmt.Sprintf("%s %s: %s\n", typ.Emoji(), typ.Plural(), statusText(status)))
	}
	b.SendMessage(chatID, sb.String())
}

func statusText(status domain.AuthorizationStatus) string {
	switch status {
	case domain.StatusAuthorized:
		return "allowed"
	case domain.StatusDenied:
		return "not allowed"
	default:
		return "not asked yet"
	}
}

// parseEntityTypes reads "events", "reminders" or nothing for both
func parseEntityTypes(arg string) ([]domain.EntityType, bool) {
	switch strings.ToLower(arg) {
	case "":
		return []domain.EntityType{domain.EntityEvent, domain.EntityReminder}, true
	case "events", "event":
		return []domain.EntityType{domain.EntityEvent}, true
	case "reminders", "reminder":
		return []domain.EntityType{domain.EntityReminder}, true
	default:
		return nil, false
	}
}

func (b *Bot) cmdSetAccess(chatID int64, args string, set func(context.Context, domain.EntityType) error, done string) {
	types, ok := parseEntityTypes(args)
	if !ok {
		b.SendMessage(chatID, "Specify events or reminders")
		return
	}

	ctx := context.Background()
	var names []string
	for _, typ := range types {
		if err := set(ctx, typ); err != nil {
			log.Printf("Error changing access: %v", err)
			b.SendMessage(chatID, "❌ Could not change access")
			return
		}
		names = append(names, typ.Plural())
	}

	// Open lists re-fetch under the new decision
	b.changes.Publish()
	b.SendMessage(chatID, done+" "+strings.Join(names, " and "))
}
