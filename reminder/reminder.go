// Package reminder computes fire times for task reminders and runs the
// two-tier polling scheduler that delivers them as notifications.
package reminder

import (
	"time"

	"github.com/pkg/errors"

	"github.com/thisisthedave/tasknotes-sub002/duration"
)

// Task is the view of a task record the engine needs. A zero Due or
// Scheduled time means the task does not carry that date.
type Task struct {
	// Path identifies the task record in the host's storage. It is the
	// stable half of every reminder key.
	Path      string
	Title     string
	Due       time.Time
	Scheduled time.Time
	Reminders []Reminder
}

// ReminderKind separates literal-time reminders from anchor-relative
// ones.
type ReminderKind string

const (
	// ReminderAbsolute fires at a literal timestamp.
	ReminderAbsolute ReminderKind = "absolute"
	// ReminderRelative fires at a signed offset from a task anchor.
	ReminderRelative ReminderKind = "relative"
)

// Anchor selects which task date a relative reminder measures from.
type Anchor string

const (
	AnchorDue       Anchor = "due"
	AnchorScheduled Anchor = "scheduled"
)

// Reminder is one notification request owned by a task. Reminders are
// never edited in place; the host replaces the whole task on change.
type Reminder struct {
	// ID is unique within the owning task.
	ID   string
	Kind ReminderKind
	// At is the literal fire time for absolute reminders, RFC 3339.
	At string
	// RelatedTo and Offset define relative reminders. Offset is a
	// signed ISO 8601 duration measured from the anchor; negative
	// means before it.
	RelatedTo Anchor
	Offset    string
	// Description, when set, replaces the generated notification text.
	Description string
}

// anchorTime resolves an anchor against the task's dates. ok is false
// when the task does not carry the date.
func (t Task) anchorTime(a Anchor) (time.Time, bool) {
	switch a {
	case AnchorDue:
		return t.Due, !t.Due.IsZero()
	case AnchorScheduled:
		return t.Scheduled, !t.Scheduled.IsZero()
	default:
		return time.Time{}, false
	}
}

// FireTime computes when the reminder fires. ok is false when the task
// lacks the anchor the reminder needs; such a reminder is inert, not
// broken. Malformed timestamps, offsets, kinds, and anchors return an
// error instead, so the caller can suppress exactly the bad reminder.
func FireTime(task Task, r Reminder) (fireAt time.Time, ok bool, err error) {
	switch r.Kind {
	case ReminderAbsolute:
		t, err := time.Parse(time.RFC3339, r.At)
		if err != nil {
			return time.Time{}, false, errors.Wrapf(err, "reminder %s: bad absolute time %q", r.ID, r.At)
		}
		return t, true, nil

	case ReminderRelative:
		switch r.RelatedTo {
		case AnchorDue, AnchorScheduled:
		default:
			return time.Time{}, false, errors.Errorf("reminder %s: unknown anchor %q", r.ID, r.RelatedTo)
		}
		anchor, ok := task.anchorTime(r.RelatedTo)
		if !ok {
			return time.Time{}, false, nil
		}
		offset, err := duration.Parse(r.Offset)
		if err != nil {
			return time.Time{}, false, errors.Wrapf(err, "reminder %s: bad offset", r.ID)
		}
		return anchor.Add(offset), true, nil

	default:
		return time.Time{}, false, errors.Errorf("reminder %s: unknown kind %q", r.ID, r.Kind)
	}
}
