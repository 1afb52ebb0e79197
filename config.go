package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/thisisthedave/tasknotes-sub002/calendar"
)

type config struct {
	Timezone      timezoneValue        `json:"timezone"`
	TasksFile     string               `json:"tasks_file"`
	Subscriptions []subscriptionConfig `json:"subscriptions"`
	Notify        notifyConfig         `json:"notify"`

	RescanInterval durationValue `json:"rescan_interval"`
	PollInterval   durationValue `json:"poll_interval"`
	AgendaInterval durationValue `json:"agenda_interval"`

	// DefaultReminders are offsets applied before the due date of every
	// task that has one, in addition to the task's own reminders.
	DefaultReminders []durationValue `json:"default_reminders"`
}

type notifyConfig struct {
	WebhookURL      string `json:"webhook_url"`
	MessageTemplate string `json:"message_template"`
}

type subscriptionConfig struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	URL            string `json:"url"`
	Path           string `json:"path"`
	Disabled       bool   `json:"disabled"`
	RefreshMinutes int    `json:"refresh_minutes"`
}

// subscription maps the config entry onto the calendar model. The kind
// is inferred from which locator is set when not spelled out.
func (sc subscriptionConfig) subscription() calendar.Subscription {
	kind := calendar.SubscriptionKind(sc.Kind)
	if kind == "" {
		kind = calendar.SubscriptionRemote
		if sc.Path != "" {
			kind = calendar.SubscriptionLocal
		}
	}

	id := sc.ID
	if id == "" {
		if kind == calendar.SubscriptionLocal {
			id = sc.Path
		} else {
			id = sc.URL
		}
	}

	return calendar.Subscription{
		ID:             id,
		Name:           sc.Name,
		Kind:           kind,
		URL:            sc.URL,
		Path:           sc.Path,
		Enabled:        !sc.Disabled,
		RefreshMinutes: sc.RefreshMinutes,
	}
}

func parseConfigFiles(paths []string) (*config, error) {
	var cfg config
	for _, path := range paths {
		if err := parseConfigFile(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}
	return &cfg, nil
}

func parseConfigFile(path string, dst *config) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return errors.Wrap(err, "failed to decode config")
	}

	return nil
}

type durationValue time.Duration

func durationValues(durs []durationValue) []time.Duration {
	out := make([]time.Duration, 0, len(durs))
	for _, d := range durs {
		out = append(out, time.Duration(d))
	}
	return out
}

func (d durationValue) Duration() time.Duration {
	return time.Duration(d)
}

func (d *durationValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "failed to decode duration")
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "failed to parse duration")
	}

	*d = durationValue(dur)
	return nil
}

type timezoneValue time.Location

func (t *timezoneValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "failed to decode timezone")
	}

	loc, err := time.LoadLocation(s)
	if err != nil {
		return errors.Wrap(err, "failed to load timezone")
	}

	*t = timezoneValue(*loc)
	return nil
}

// Location returns the configured location, or the system local zone
// when the config never set one.
func (t *timezoneValue) Location() *time.Location {
	loc := (*time.Location)(t)
	if t == nil || loc.String() == "" {
		return time.Local
	}
	return loc
}
