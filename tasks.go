package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tj/go-naturaldate"

	"github.com/thisisthedave/tasknotes-sub002/clocker"
	"github.com/thisisthedave/tasknotes-sub002/duration"
	"github.com/thisisthedave/tasknotes-sub002/reminder"
)

// taskRecord is the on-disk shape of one task in the tasks file.
type taskRecord struct {
	Path      string           `json:"path"`
	Title     string           `json:"title"`
	Due       *time.Time       `json:"due,omitempty"`
	Scheduled *time.Time       `json:"scheduled,omitempty"`
	Text      string           `json:"text,omitempty"`
	Reminders []reminderRecord `json:"reminders,omitempty"`
}

type reminderRecord struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	At          string `json:"at,omitempty"`
	RelatedTo   string `json:"related_to,omitempty"`
	Offset      string `json:"offset,omitempty"`
	Description string `json:"description,omitempty"`
}

// fileTaskSource reads task records from one JSON file. Reads are
// cached against the file's mtime so the broad rescan does not reparse
// an unchanged file every five minutes.
type fileTaskSource struct {
	path             string
	defaultReminders []time.Duration

	mu      sync.Mutex
	modTime time.Time
	tasks   []reminder.Task
}

var _ reminder.TaskSource = (*fileTaskSource)(nil)

func newFileTaskSource(path string, defaultReminders []time.Duration) *fileTaskSource {
	return &fileTaskSource{
		path:             path,
		defaultReminders: defaultReminders,
	}
}

// Tasks implements reminder.TaskSource.
func (s *fileTaskSource) Tasks(ctx context.Context) ([]reminder.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.tasks), nil
}

func (s *fileTaskSource) loadLocked(ctx context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "failed to stat tasks file")
	}
	if !s.modTime.IsZero() && !info.ModTime().After(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "failed to read tasks file")
	}

	var records []taskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrap(err, "failed to decode tasks file")
	}

	tasks := make([]reminder.Task, 0, len(records))
	for _, rec := range records {
		if rec.Path == "" {
			slog.WarnContext(ctx,
				"skipping task record without a path",
				"title", rec.Title)
			continue
		}
		tasks = append(tasks, s.taskFromRecord(ctx, rec))
	}
	slices.SortFunc(tasks, func(a, b reminder.Task) int {
		return strings.Compare(a.Path, b.Path)
	})

	s.modTime = info.ModTime()
	s.tasks = tasks

	slog.DebugContext(ctx,
		"tasks file loaded",
		"path", s.path,
		"tasks", len(tasks))
	return nil
}

// taskFromRecord maps one record onto the engine's task model. Inline
// reminder phrases in the task text and the configured defaults are
// folded in as synthesized relative reminders with stable IDs.
func (s *fileTaskSource) taskFromRecord(ctx context.Context, rec taskRecord) reminder.Task {
	task := reminder.Task{
		Path:  rec.Path,
		Title: rec.Title,
	}
	if rec.Due != nil {
		task.Due = *rec.Due
	}
	if rec.Scheduled != nil {
		task.Scheduled = *rec.Scheduled
	}

	for _, rr := range rec.Reminders {
		task.Reminders = append(task.Reminders, reminder.Reminder{
			ID:          rr.ID,
			Kind:        reminder.ReminderKind(rr.Kind),
			At:          rr.At,
			RelatedTo:   reminder.Anchor(rr.RelatedTo),
			Offset:      rr.Offset,
			Description: rr.Description,
		})
	}

	task.Reminders = append(task.Reminders, inlineReminders(ctx, rec, task)...)

	if !task.Due.IsZero() {
		for i, d := range s.defaultReminders {
			task.Reminders = append(task.Reminders, reminder.Reminder{
				ID:        fmt.Sprintf("default-%d", i+1),
				Kind:      reminder.ReminderRelative,
				RelatedTo: reminder.AnchorDue,
				Offset:    duration.Format(-d),
			})
		}
	}

	return task
}

var remindPhraseRe = regexp.MustCompile(`(?i)remind me (.+?) before (due|scheduled)\b`)

// inlineReminders extracts "Remind me 15 minutes before due" phrases
// from the task text. The phrase is interpreted with naturaldate, so
// spelled-out amounts like "two hours" work, then re-rendered as a
// signed offset for the engine.
func inlineReminders(ctx context.Context, rec taskRecord, task reminder.Task) []reminder.Reminder {
	matches := remindPhraseRe.FindAllStringSubmatch(rec.Text, -1)
	reminders := make([]reminder.Reminder, 0, len(matches))

	for i, m := range matches {
		// Only the distance from the base matters here, not the base
		// itself; the engine re-applies the offset to the live anchor.
		base := time.Now()
		t, err := naturaldate.Parse(m[1], base, naturaldate.WithDirection(naturaldate.Past))
		if err != nil {
			slog.WarnContext(ctx,
				"failed to parse inline reminder phrase",
				"task", rec.Path,
				"phrase", m[1],
				"err", err)
			continue
		}

		anchor := reminder.AnchorDue
		if strings.EqualFold(m[2], string(reminder.AnchorScheduled)) {
			anchor = reminder.AnchorScheduled
		}

		reminders = append(reminders, reminder.Reminder{
			ID:        fmt.Sprintf("inline-%d", i+1),
			Kind:      reminder.ReminderRelative,
			RelatedTo: anchor,
			Offset:    duration.Format(t.Sub(base)),
		})
	}

	return reminders
}

// taskWatchInterval is how often the tasks file is polled for changes.
const taskWatchInterval = 15 * time.Second

// watch polls the tasks file and pushes changed records into the
// scheduler, so edits take effect without waiting for a broad rescan.
func (s *fileTaskSource) watch(ctx context.Context, sched *reminder.Scheduler) error {
	ticker := clocker.NewTicker(taskWatchInterval)
	defer ticker.Stop()

	prev, err := s.snapshot(ctx)
	if err != nil {
		slog.WarnContext(ctx,
			"tasks file not readable yet, watching for it",
			"path", s.path,
			"err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			cur, err := s.snapshot(ctx)
			if err != nil {
				slog.ErrorContext(ctx,
					"failed to reload tasks file",
					"path", s.path,
					"err", err)
				continue
			}

			for path, enc := range cur {
				if prevEnc, ok := prev[path]; !ok || prevEnc != enc.encoded {
					sched.TaskUpdated(enc.task)
				}
			}
			for path := range prev {
				if _, ok := cur[path]; !ok {
					sched.TaskRemoved(path)
				}
			}

			prevNext := make(map[string]string, len(cur))
			for path, enc := range cur {
				prevNext[path] = enc.encoded
			}
			prev = prevNext
		}
	}
}

type encodedTask struct {
	task    reminder.Task
	encoded string
}

// snapshot returns the current tasks keyed by path, each with a
// canonical encoded form used for change detection.
func (s *fileTaskSource) snapshot(ctx context.Context) (map[string]encodedTask, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]encodedTask, len(tasks))
	for _, t := range tasks {
		enc, err := json.Marshal(t)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode task for comparison")
		}
		snap[t.Path] = encodedTask{task: t, encoded: string(enc)}
	}
	return snap, nil
}
