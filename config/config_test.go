package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envOf(map[string]string{
		"TELEGRAM_BOT_TOKEN": "token",
		"OWNER_TELEGRAM_ID":  "42",
	}), fileConfig{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.OwnerTelegramID != 42 {
		t.Errorf("OwnerTelegramID = %d", cfg.OwnerTelegramID)
	}
	if cfg.CalendarTitle != "EventMe" || !cfg.CalendarAutoCreate {
		t.Errorf("calendar = %q auto %v", cfg.CalendarTitle, cfg.CalendarAutoCreate)
	}
	if cfg.Backend != BackendSQLite || cfg.UseWebhook() {
		t.Errorf("backend = %s webhook = %v", cfg.Backend, cfg.UseWebhook())
	}
	if cfg.PollInterval != time.Minute || cfg.ServerPort != "8080" {
		t.Errorf("poll = %v port = %s", cfg.PollInterval, cfg.ServerPort)
	}
	if !cfg.IsAllowedUser(42) || cfg.IsAllowedUser(7) {
		t.Error("only the owner is allowed")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	var file fileConfig
	err := yaml.Unmarshal([]byte(`
telegram_bot_token: from-file
owner_telegram_id: 1
timezone: UTC
calendar_title: Family
calendar_auto_create: false
backend: caldav
caldav:
  url: https://caldav.example.com
  username: me
  password: secret
poll_interval: 5m
`), &file)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := load(envOf(map[string]string{
		"OWNER_TELEGRAM_ID": "2",
		"CALENDAR_TITLE":    "Work",
	}), file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.TelegramToken != "from-file" || cfg.OwnerTelegramID != 2 {
		t.Errorf("token = %s owner = %d", cfg.TelegramToken, cfg.OwnerTelegramID)
	}
	if cfg.CalendarTitle != "Work" || cfg.CalendarAutoCreate {
		t.Errorf("calendar = %q auto %v", cfg.CalendarTitle, cfg.CalendarAutoCreate)
	}
	if cfg.Backend != BackendCalDAV || cfg.CalDAVUsername != "me" || cfg.PollInterval != 5*time.Minute {
		t.Errorf("backend = %s user = %s poll = %v", cfg.Backend, cfg.CalDAVUsername, cfg.PollInterval)
	}
	if cfg.Timezone != time.UTC {
		t.Errorf("timezone = %v", cfg.Timezone)
	}
}

func TestLoadErrors(t *testing.T) {
	base := map[string]string{"TELEGRAM_BOT_TOKEN": "t", "OWNER_TELEGRAM_ID": "1"}
	tests := []struct {
		name    string
		set     map[string]string
		wantErr string
	}{
		{"missing token", map[string]string{"TELEGRAM_BOT_TOKEN": ""}, "TELEGRAM_BOT_TOKEN"},
		{"bad owner", map[string]string{"OWNER_TELEGRAM_ID": "abc"}, "OWNER_TELEGRAM_ID"},
		{"bad backend", map[string]string{"BACKEND": "mongo"}, "BACKEND"},
		{"caldav without creds", map[string]string{"BACKEND": "caldav"}, "CALDAV_USERNAME"},
		{"bad poll", map[string]string{"POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			for k, v := range tt.set {
				env[k] = v
			}
			_, err := load(envOf(env), fileConfig{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
