package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/diamondburned/arikawa/v3/api/webhook"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/thisisthedave/tasknotes-sub002/calendar"
	"github.com/thisisthedave/tasknotes-sub002/clocker"
	"github.com/thisisthedave/tasknotes-sub002/reminder"
)

var (
	verbose    = false
	configGlob = "config*.json"
)

func init() {
	flag.BoolVar(&verbose, "v", verbose, "verbose")
	flag.StringVar(&configGlob, "c", configGlob, "config file glob")
}

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})))

	if err := run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

func run(ctx context.Context) error {
	configFiles, err := filepath.Glob(configGlob)
	if err != nil {
		return errors.Wrap(err, "failed to glob config files")
	}

	for _, path := range configFiles {
		slog.DebugContext(ctx,
			"found config file",
			"path", path)
	}

	cfg, err := parseConfigFiles(configFiles)
	if err != nil {
		return errors.Wrap(err, "failed to parse config file")
	}

	tasksFile := cfg.TasksFile
	if tasksFile == "" {
		tasksFile = "tasks.json"
	}

	cache := calendar.NewCache()
	subscriptions := calendar.NewScheduler(cache, calendar.SchedulerOpts{
		Location: cfg.Timezone.Location(),
	})
	for _, sc := range cfg.Subscriptions {
		subscriptions.SetSubscription(sc.subscription())
	}

	tasks := newFileTaskSource(tasksFile, durationValues(cfg.DefaultReminders))

	notify, err := newNotifier(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create notifier")
	}

	scheduler := reminder.NewScheduler(tasks, notify, reminder.Opts{
		RescanInterval: cfg.RescanInterval.Duration(),
		PollInterval:   cfg.PollInterval.Duration(),
	})

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		return scheduler.Run(ctx)
	})

	errg.Go(func() error {
		return tasks.watch(ctx, scheduler)
	})

	errg.Go(func() error {
		subscriptions.Start()
		defer subscriptions.Stop()
		subscriptions.RefreshAll(ctx)
		<-ctx.Done()
		return ctx.Err()
	})

	errg.Go(func() error {
		return logAgenda(ctx, cfg, cache, subscriptions)
	})

	return errg.Wait()
}

// newNotifier builds the delivery callback. With a webhook configured,
// notifications go out as Discord messages; otherwise they land in the
// log, which is always available.
func newNotifier(cfg *config) (reminder.NotifyFunc, error) {
	templateText := cfg.Notify.MessageTemplate
	if templateText == "" {
		templateText = "{{.Message}}"
	}
	messageTemplate, err := template.New("").Parse(templateText)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse message template")
	}

	if cfg.Notify.WebhookURL == "" {
		return func(ctx context.Context, n reminder.Notification) error {
			slog.InfoContext(ctx, n.Message,
				"task", n.TaskPath,
				"reminder", n.Reminder.ID,
				"fire_at", n.FireAt)
			return nil
		}, nil
	}

	webhookClient, err := webhook.NewFromURL(cfg.Notify.WebhookURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create webhook")
	}

	return func(ctx context.Context, n reminder.Notification) error {
		message, err := notificationMessage(messageTemplate, n)
		if err != nil {
			return err
		}
		return webhookClient.WithContext(ctx).Execute(*message)
	}, nil
}

func notificationMessage(tmpl *template.Template, n reminder.Notification) (*webhook.ExecuteData, error) {
	var content strings.Builder
	if err := tmpl.Execute(&content, n); err != nil {
		return nil, errors.Wrap(err, "failed to execute message template")
	}

	embed := discord.Embed{
		Title:       n.Title,
		Description: n.Message,
		Color:       0x2c91c6,
		Fields: []discord.EmbedField{
			{
				Name:   "Task",
				Value:  n.TaskPath,
				Inline: true,
			},
			{
				Name:   "Fired",
				Value:  fmt.Sprintf("<t:%d:R>", n.FireAt.Unix()),
				Inline: true,
			},
		},
	}

	return &webhook.ExecuteData{
		Content: content.String(),
		Embeds:  []discord.Embed{embed},
	}, nil
}

// logAgenda periodically logs the merged calendar agenda and any
// subscriptions that are failing to refresh.
func logAgenda(ctx context.Context, cfg *config, cache *calendar.Cache, subscriptions *calendar.Scheduler) error {
	interval := cfg.AgendaInterval.Duration()
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := clocker.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			events := cache.AllEvents(now)

			next := calendar.Event{}
			for _, ev := range events {
				if ev.StartsAt.After(now) {
					next = ev
					break
				}
			}
			if next.ID != "" {
				slog.InfoContext(ctx,
					"calendar agenda",
					"cached_events", len(events),
					"next_event", next.Title,
					"next_starts_at", next.StartsAt)
			} else {
				slog.InfoContext(ctx,
					"calendar agenda",
					"cached_events", len(events))
			}

			for _, sub := range subscriptions.Subscriptions() {
				if sub.LastError != "" {
					slog.WarnContext(ctx,
						"subscription is failing to refresh",
						"subscription", sub.ID,
						"source", sub.Source(),
						"err", sub.LastError)
				}
			}
		}
	}
}
