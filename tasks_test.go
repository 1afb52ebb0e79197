package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/thisisthedave/tasknotes-sub002/reminder"
)

func writeTasksFile(t *testing.T, path, doc string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestTaskFromRecordDefaults(t *testing.T) {
	ctx := context.Background()
	src := newFileTaskSource("unused.json", []time.Duration{
		15 * time.Minute,
		time.Hour,
	})

	due := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	task := src.taskFromRecord(ctx, taskRecord{Path: "p.md", Title: "P", Due: &due})

	assert.Equal(t, 2, len(task.Reminders))
	assert.Equal(t, reminder.Reminder{
		ID:        "default-1",
		Kind:      reminder.ReminderRelative,
		RelatedTo: reminder.AnchorDue,
		Offset:    "-PT15M",
	}, task.Reminders[0])
	assert.Equal(t, "default-2", task.Reminders[1].ID)
	assert.Equal(t, "-PT1H", task.Reminders[1].Offset)

	// Defaults hang off the due date; without one they stay off.
	sched := due.Add(time.Hour)
	task = src.taskFromRecord(ctx, taskRecord{Path: "p.md", Scheduled: &sched})
	assert.Equal(t, 0, len(task.Reminders))
}

func TestInlineReminders(t *testing.T) {
	ctx := context.Background()
	src := newFileTaskSource("unused.json", nil)

	task := src.taskFromRecord(ctx, taskRecord{
		Path: "n.md",
		Text: "Water the plants. Remind me 15 minutes before due. " +
			"Remind me 1 hour before scheduled.",
	})

	assert.Equal(t, 2, len(task.Reminders))
	assert.Equal(t, "inline-1", task.Reminders[0].ID)
	assert.Equal(t, reminder.AnchorDue, task.Reminders[0].RelatedTo)
	assert.Equal(t, "-PT15M", task.Reminders[0].Offset)
	assert.Equal(t, "inline-2", task.Reminders[1].ID)
	assert.Equal(t, reminder.AnchorScheduled, task.Reminders[1].RelatedTo)
	assert.Equal(t, "-PT1H", task.Reminders[1].Offset)

	// An unparseable phrase is dropped, not guessed at.
	task = src.taskFromRecord(ctx, taskRecord{
		Path: "n.md",
		Text: "Remind me xyzzy before due.",
	})
	assert.Equal(t, 0, len(task.Reminders))
}

func TestFileTaskSourceLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	writeTasksFile(t, path, `[
		{"path": "b.md", "title": "B", "due": "2024-04-01T09:00:00Z"},
		{"title": "no path"},
		{"path": "a.md", "title": "A"}
	]`)

	src := newFileTaskSource(path, nil)
	tasks, err := src.Tasks(ctx)
	assert.NoError(t, err)

	// Pathless records are skipped; the rest come back sorted by path.
	assert.Equal(t, 2, len(tasks))
	assert.Equal(t, "a.md", tasks[0].Path)
	assert.Equal(t, "b.md", tasks[1].Path)
	assert.True(t, tasks[1].Due.Equal(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)))
}

func TestFileTaskSourceMtimeCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	writeTasksFile(t, path, `[{"path": "a.md", "title": "A"}]`)

	src := newFileTaskSource(path, nil)
	tasks, err := src.Tasks(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(tasks))

	info, err := os.Stat(path)
	assert.NoError(t, err)
	loaded := info.ModTime()

	// Same mtime means the rewrite goes unnoticed.
	writeTasksFile(t, path, `[
		{"path": "a.md", "title": "A"},
		{"path": "b.md", "title": "B"}
	]`)
	assert.NoError(t, os.Chtimes(path, loaded, loaded))
	tasks, err = src.Tasks(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(tasks))

	bumped := loaded.Add(2 * time.Second)
	assert.NoError(t, os.Chtimes(path, bumped, bumped))
	tasks, err = src.Tasks(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(tasks))
}

func TestFileTaskSourceSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")
	writeTasksFile(t, path, `[
		{"path": "a.md", "title": "A"},
		{"path": "b.md", "title": "B"}
	]`)

	src := newFileTaskSource(path, nil)
	before, err := src.snapshot(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(before))

	info, err := os.Stat(path)
	assert.NoError(t, err)
	bumped := info.ModTime().Add(2 * time.Second)

	writeTasksFile(t, path, `[{"path": "a.md", "title": "A renamed"}]`)
	assert.NoError(t, os.Chtimes(path, bumped, bumped))

	after, err := src.snapshot(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(after))

	// The edited task encodes differently; that difference is what the
	// watcher keys change notifications on.
	assert.NotEqual(t, before["a.md"].encoded, after["a.md"].encoded)
	_, stillThere := after["b.md"]
	assert.False(t, stillThere)
}
