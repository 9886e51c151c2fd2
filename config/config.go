package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendCalDAV = "caldav"
)

type Config struct {
	TelegramToken      string
	OwnerTelegramID    int64
	DatabasePath       string
	Timezone           *time.Location
	CalendarTitle      string
	CalendarAutoCreate bool
	Backend            string
	CalDAVURL          string
	CalDAVUsername     string
	CalDAVPassword     string
	WebhookURL         string
	ServerPort         string
	APIUsername        string
	APIPassword        string
	PollInterval       time.Duration
	AlarmSchedule      string
}

// fileConfig is the optional CONFIG_FILE. Environment variables win over it.
type fileConfig struct {
	TelegramToken      string `yaml:"telegram_bot_token"`
	OwnerTelegramID    int64  `yaml:"owner_telegram_id"`
	DatabasePath       string `yaml:"database_path"`
	Timezone           string `yaml:"timezone"`
	CalendarTitle      string `yaml:"calendar_title"`
	CalendarAutoCreate *bool  `yaml:"calendar_auto_create"`
	Backend            string `yaml:"backend"`
	CalDAV             struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"caldav"`
	WebhookURL string `yaml:"webhook_url"`
	ServerPort string `yaml:"server_port"`
	API        struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"api"`
	PollInterval  string `yaml:"poll_interval"`
	AlarmSchedule string `yaml:"alarm_schedule"`
}

func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	return load(os.Getenv, file)
}

func pick(env, file, def string) string {
	if env != "" {
		return env
	}
	if file != "" {
		return file
	}
	return def
}

func load(getenv func(string) string, file fileConfig) (*Config, error) {
	token := pick(getenv("TELEGRAM_BOT_TOKEN"), file.TelegramToken, "")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	ownerID := file.OwnerTelegramID
	if v := getenv("OWNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("OWNER_TELEGRAM_ID must be a number")
		}
		ownerID = id
	}
	if ownerID == 0 {
		return nil, fmt.Errorf("OWNER_TELEGRAM_ID is required and must be a number")
	}

	tz, err := time.LoadLocation(pick(getenv("TIMEZONE"), file.Timezone, "Europe/Moscow"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	autoCreate := true
	if file.CalendarAutoCreate != nil {
		autoCreate = *file.CalendarAutoCreate
	}
	if v := getenv("CALENDAR_AUTO_CREATE"); v != "" {
		autoCreate, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CALENDAR_AUTO_CREATE: %w", err)
		}
	}

	backend := strings.ToLower(pick(getenv("BACKEND"), file.Backend, BackendSQLite))
	if backend != BackendSQLite && backend != BackendCalDAV {
		return nil, fmt.Errorf("invalid BACKEND %q (want %s or %s)", backend, BackendSQLite, BackendCalDAV)
	}

	pollInterval, err := time.ParseDuration(pick(getenv("POLL_INTERVAL"), file.PollInterval, "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}

	cfg := &Config{
		TelegramToken:      token,
		OwnerTelegramID:    ownerID,
		DatabasePath:       pick(getenv("DATABASE_PATH"), file.DatabasePath, "./data/eventme.db"),
		Timezone:           tz,
		CalendarTitle:      pick(getenv("CALENDAR_TITLE"), file.CalendarTitle, "EventMe"),
		CalendarAutoCreate: autoCreate,
		Backend:            backend,
		CalDAVURL:          pick(getenv("CALDAV_URL"), file.CalDAV.URL, ""),
		CalDAVUsername:     pick(getenv("CALDAV_USERNAME"), file.CalDAV.Username, ""),
		CalDAVPassword:     pick(getenv("CALDAV_PASSWORD"), file.CalDAV.Password, ""),
		WebhookURL:         pick(getenv("WEBHOOK_URL"), file.WebhookURL, ""),
		ServerPort:         pick(getenv("SERVER_PORT"), file.ServerPort, "8080"),
		APIUsername:        pick(getenv("API_USERNAME"), file.API.Username, ""),
		APIPassword:        pick(getenv("API_PASSWORD"), file.API.Password, ""),
		PollInterval:       pollInterval,
		AlarmSchedule:      pick(getenv("ALARM_SCHEDULE"), file.AlarmSchedule, "* * * * *"),
	}

	if cfg.Backend == BackendCalDAV && (cfg.CalDAVUsername == "" || cfg.CalDAVPassword == "") {
		return nil, fmt.Errorf("CALDAV_USERNAME and CALDAV_PASSWORD are required for the caldav backend")
	}

	return cfg, nil
}

func (c *Config) IsAllowedUser(telegramID int64) bool {
	return telegramID == c.OwnerTelegramID
}

// UseWebhook reports whether updates arrive by webhook instead of long polling
func (c *Config) UseWebhook() bool {
	return c.WebhookURL != ""
}
