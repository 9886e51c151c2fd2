package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/eventme/config"
	"github.com/tazhate/eventme/internal/bot"
	"github.com/tazhate/eventme/internal/clients/caldav"
	"github.com/tazhate/eventme/internal/notify"
	"github.com/tazhate/eventme/internal/scheduler"
	"github.com/tazhate/eventme/internal/service"
	"github.com/tazhate/eventme/internal/storage"
)

// backend is what both managers need from a store
type backend interface {
	service.EventBackend
	service.ReminderBackend
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	changes := notify.NewCenter()

	// Access decisions always live in sqlite, records in the configured backend
	store, err := storage.New(cfg.DatabasePath, changes)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	var records backend = store
	var caldavClient *caldav.Client
	if cfg.Backend == config.BackendCalDAV {
		caldavClient = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.Timezone, changes)
		records = caldavClient
		log.Printf("Using CalDAV backend")
	}

	access := service.NewAccessService(store)
	opts := service.ManagerOptions{
		CalendarTitle: cfg.CalendarTitle,
		AutoCreate:    cfg.CalendarAutoCreate,
		Timezone:      cfg.Timezone,
	}
	events := service.NewEventManager(access, records, opts)
	reminders := service.NewReminderManager(access, records, opts)
	export := service.NewExportService(events, reminders, cfg.CalendarTitle)

	tgBot, err := bot.New(cfg, access, events, reminders, export, changes)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}
	access.SetPrompter(tgBot)

	if cfg.UseWebhook() {
		if err := tgBot.SetupWebhook(); err != nil {
			log.Fatalf("Failed to setup webhook: %v", err)
		}
	}

	sched := scheduler.New(cfg, events, reminders)
	sched.SetSender(tgBot)
	if caldavClient != nil {
		sched.SetPoller(caldavClient, changes)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
		}
	}()

	log.Println("EventMe started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping bot: %v", err)
	}

	log.Println("EventMe stopped")
}
