package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/hako/durafmt"
)

// Notification is one fired reminder, handed to the delivery callback.
type Notification struct {
	TaskPath string
	Title    string
	Message  string
	Reminder Reminder
	FireAt   time.Time
}

// NotifyFunc delivers one notification. A returned error makes the
// scheduler fall back to an in-process log notice; it never stops the
// scheduler or re-queues the reminder.
type NotifyFunc func(ctx context.Context, n Notification) error

// Message builds the notification body for a reminder firing at
// fireAt. A non-empty reminder description wins verbatim; otherwise
// the body states how far the anchor is from the fire time, such as
// "Water plants is due in 15 minutes".
func Message(task Task, r Reminder, fireAt time.Time) string {
	if r.Description != "" {
		return r.Description
	}

	title := titleOf(task)
	if r.Kind != ReminderRelative {
		return fmt.Sprintf("Reminder: %s", title)
	}

	anchor, ok := task.anchorTime(r.RelatedTo)
	if !ok {
		return fmt.Sprintf("Reminder: %s", title)
	}

	verb := "due"
	if r.RelatedTo == AnchorScheduled {
		verb = "scheduled"
	}

	switch delta := anchor.Sub(fireAt).Truncate(time.Second); {
	case delta > 0:
		return fmt.Sprintf("%s is %s in %s", title, verb, humanDuration(delta))
	case delta < 0:
		return fmt.Sprintf("%s was %s %s ago", title, verb, humanDuration(-delta))
	default:
		return fmt.Sprintf("%s is %s now", title, verb)
	}
}

// humanDuration renders at most the two largest units, so an offset of
// 90 minutes reads "1 hour 30 minutes" rather than spelling out zero
// seconds.
func humanDuration(d time.Duration) string {
	return durafmt.Parse(d).LimitFirstN(2).String()
}

func titleOf(t Task) string {
	if t.Title != "" {
		return t.Title
	}
	return t.Path
}
