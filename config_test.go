package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/thisisthedave/tasknotes-sub002/calendar"
)

func TestParseConfigFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.json")
	local := filepath.Join(dir, "config.local.json")

	assert.NoError(t, os.WriteFile(base, []byte(`{
		"timezone": "UTC",
		"tasks_file": "vault/tasks.json",
		"rescan_interval": "3m",
		"poll_interval": "20s",
		"default_reminders": ["15m", "1h"],
		"notify": {"webhook_url": "https://example.com/hook"},
		"subscriptions": [
			{"name": "Team", "url": "https://example.com/team.ics"}
		]
	}`), 0o644))
	assert.NoError(t, os.WriteFile(local, []byte(`{
		"notify": {"webhook_url": "https://example.com/hook-test"}
	}`), 0o644))

	cfg, err := parseConfigFiles([]string{base, local})
	assert.NoError(t, err)

	assert.Equal(t, "vault/tasks.json", cfg.TasksFile)
	assert.Equal(t, "UTC", cfg.Timezone.Location().String())
	assert.Equal(t, 3*time.Minute, cfg.RescanInterval.Duration())
	assert.Equal(t, 20*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t,
		[]time.Duration{15 * time.Minute, time.Hour},
		durationValues(cfg.DefaultReminders))

	// Later files override earlier ones.
	assert.Equal(t, "https://example.com/hook-test", cfg.Notify.WebhookURL)
	assert.Equal(t, 1, len(cfg.Subscriptions))
}

func TestSubscriptionConfigInference(t *testing.T) {
	remote := subscriptionConfig{
		Name: "Team",
		URL:  "https://example.com/team.ics",
	}.subscription()
	assert.Equal(t, calendar.SubscriptionRemote, remote.Kind)
	assert.Equal(t, "https://example.com/team.ics", remote.ID)
	assert.True(t, remote.Enabled)

	localSub := subscriptionConfig{
		Path:     "calendars/personal.ics",
		Disabled: true,
	}.subscription()
	assert.Equal(t, calendar.SubscriptionLocal, localSub.Kind)
	assert.Equal(t, "calendars/personal.ics", localSub.ID)
	assert.False(t, localSub.Enabled)

	explicit := subscriptionConfig{
		ID:   "work",
		Kind: "remote",
		URL:  "https://example.com/work.ics",
	}.subscription()
	assert.Equal(t, "work", explicit.ID)
	assert.Equal(t, calendar.SubscriptionRemote, explicit.Kind)
}

func TestTimezoneValueDefaultsToLocal(t *testing.T) {
	var tz timezoneValue
	assert.Equal(t, time.Local, tz.Location())
}
