package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/eventme/config"
	"github.com/tazhate/eventme/internal/notify"
	"github.com/tazhate/eventme/internal/service"
)

type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	access    *service.AccessService
	events    *service.EventManager
	reminders *service.ReminderManager
	export    *service.ExportService
	changes   *notify.Center
	sessions  *sessionStore
	prompts   *promptBroker
	server    *http.Server
}

func New(cfg *config.Config, access *service.AccessService, events *service.EventManager, reminders *service.ReminderManager, export *service.ExportService, changes *notify.Center) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := &Bot{
		api:       api,
		cfg:       cfg,
		access:    access,
		events:    events,
		reminders: reminders,
		export:    export,
		changes:   changes,
		sessions:  newSessionStore(),
		prompts:   newPromptBroker(),
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "events", Description: "📅 Events"},
		{Command: "reminders", Description: "🔔 Reminders"},
		{Command: "newevent", Description: "➕ New event"},
		{Command: "newreminder", Description: "➕ New reminder"},
		{Command: "help", Description: "❓ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

// Start serves HTTP and dispatches updates until ctx is cancelled.
// Updates come from the webhook if configured, long polling otherwise.
func (b *Bot) Start(ctx context.Context) error {
	var updates tgbotapi.UpdatesChannel
	if b.cfg.UseWebhook() {
		updates = b.api.ListenForWebhook("/bot")
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("Failed to delete webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
	}

	b.SetupAPI(http.DefaultServeMux)

	b.server = &http.Server{
		Addr:    ":" + b.cfg.ServerPort,
		Handler: nil, // use DefaultServeMux
	}

	go func() {
		log.Printf("Starting HTTP server on :%s", b.cfg.ServerPort)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if !b.cfg.UseWebhook() {
				b.api.StopReceivingUpdates()
			}
			b.sessions.closeAll()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	sent, err := b.api.Send(msg)
	return sent.MessageID, err
}

// EditMessageWithKeyboard replaces text and keyboard of a sent message
func (b *Bot) EditMessageWithKeyboard(chatID int64, msgID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = &keyboard
	_, err := b.api.Send(edit)
	return err
}

// show edits msgID if set, otherwise sends a new message, and returns the message ID
func (b *Bot) show(chatID int64, msgID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) int {
	if msgID != 0 {
		err := b.EditMessageWithKeyboard(chatID, msgID, text, keyboard)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return msgID
		}
	}
	id, err := b.SendMessageWithKeyboard(chatID, text, keyboard)
	if err != nil {
		log.Printf("Error sending message to %d: %v", chatID, err)
	}
	return id
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}
