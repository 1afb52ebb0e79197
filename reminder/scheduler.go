package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/thisisthedave/tasknotes-sub002/clocker"
)

// TaskSource supplies the current task records on every broad rescan.
type TaskSource interface {
	// Tasks returns every task that may carry reminders. An error
	// aborts only the current rescan, never the scheduler; per-record
	// problems belong inside the source.
	Tasks(ctx context.Context) ([]Task, error)
}

// Opts tune the two-tier scheduler. Zero fields take the defaults.
type Opts struct {
	// RescanInterval is how often the queue is authoritatively rebuilt
	// from the task source.
	RescanInterval time.Duration
	// PollInterval is how often due items are popped and fired.
	PollInterval time.Duration
	// WakeTolerance is how much timer lateness beyond the interval is
	// attributed to process suspension rather than scheduling jitter.
	WakeTolerance time.Duration
	// Window is the queueing look-ahead. It never shrinks below
	// RescanInterval, or reminders could fall between rebuilds.
	Window time.Duration
	// Now is the scheduler's clock.
	Now clocker.NowFunc
}

const (
	defaultRescanInterval = 5 * time.Minute
	defaultPollInterval   = 30 * time.Second
	defaultWakeTolerance  = time.Minute
)

func (o Opts) withDefaults() Opts {
	if o.RescanInterval <= 0 {
		o.RescanInterval = defaultRescanInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.WakeTolerance <= 0 {
		o.WakeTolerance = defaultWakeTolerance
	}
	if o.Window < o.RescanInterval {
		o.Window = o.RescanInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// taskUpdate carries one task mutation into the scheduler loop.
type taskUpdate struct {
	path    string
	task    Task
	removed bool
}

// Scheduler owns the notification queue and both polling tiers: an
// infrequent broad rescan that rebuilds the queue from task data, and
// a frequent quick check that fires due items. All queue and task
// state belongs to the Run goroutine; external mutations arrive over
// the updates channel.
type Scheduler struct {
	opts    Opts
	source  TaskSource
	notify  NotifyFunc
	queue   *Queue
	tasks   map[string]Task
	updates chan taskUpdate
	done    chan struct{}

	lastRescan time.Time
	lastPoll   time.Time
}

// NewScheduler creates a scheduler. Call Run to start it.
func NewScheduler(source TaskSource, notify NotifyFunc, opts Opts) *Scheduler {
	return &Scheduler{
		opts:    opts.withDefaults(),
		source:  source,
		notify:  notify,
		queue:   NewQueue(),
		tasks:   make(map[string]Task),
		updates: make(chan taskUpdate, 16),
		done:    make(chan struct{}),
	}
}

// TaskUpdated re-evaluates one task's reminders immediately, so edits
// take effect without waiting for the next broad rescan.
func (s *Scheduler) TaskUpdated(task Task) {
	select {
	case s.updates <- taskUpdate{path: task.Path, task: task}:
	case <-s.done:
	}
}

// TaskRemoved drops every queued item and processed key for the path.
func (s *Scheduler) TaskRemoved(path string) {
	select {
	case s.updates <- taskUpdate{path: path, removed: true}:
	case <-s.done:
	}
}

// Run drives the scheduler until ctx is done. It performs an immediate
// broad rescan, then alternates the cheap frequent poll with the
// expensive infrequent rescan.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case <-s.done:
		panic("reminder: scheduler cannot be reused")
	default:
		defer close(s.done)
	}

	rescanTicker := clocker.NewTicker(s.opts.RescanInterval)
	defer rescanTicker.Stop()
	pollTicker := clocker.NewTicker(s.opts.PollInterval)
	defer pollTicker.Stop()

	now := s.opts.Now()
	s.lastRescan, s.lastPoll = now, now
	s.rescan(ctx, now)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-rescanTicker.C:
			s.onRescanTick(ctx)

		case <-pollTicker.C:
			s.onPollTick(ctx)

		case u := <-s.updates:
			s.onTaskUpdate(ctx, u)
		}
	}
}

// onRescanTick is the broad tier: detect suspension, then rebuild the
// queue from task data.
func (s *Scheduler) onRescanTick(ctx context.Context) {
	now := s.opts.Now()
	if gap := now.Sub(s.lastRescan); gap > s.opts.RescanInterval+s.opts.WakeTolerance {
		slog.InfoContext(ctx,
			"clock gap across rescan interval, recovering",
			"gap", gap,
			"interval", s.opts.RescanInterval)
		s.recoverFromGap(ctx, now)
	}
	s.lastRescan = now
	s.rescan(ctx, now)
}

// onPollTick is the quick tier: detect suspension, then fire whatever
// came due.
func (s *Scheduler) onPollTick(ctx context.Context) {
	now := s.opts.Now()
	if gap := now.Sub(s.lastPoll); gap > s.opts.PollInterval+s.opts.WakeTolerance {
		slog.InfoContext(ctx,
			"clock gap across poll interval, recovering",
			"gap", gap,
			"interval", s.opts.PollInterval)
		s.recoverFromGap(ctx, now)

		// The queue was built against a clock that no longer exists;
		// rebuild it now instead of waiting for the next rescan tick.
		s.lastRescan = now
		s.rescan(ctx, now)
	}
	s.lastPoll = now
	s.fireDue(ctx, now)
}

// onTaskUpdate applies one task mutation. Queued items for the path
// are dropped and its processed keys cleared, so the edited task's
// reminders are re-evaluated from scratch against the live window.
func (s *Scheduler) onTaskUpdate(ctx context.Context, u taskUpdate) {
	s.queue.RemoveTask(u.path)
	s.queue.ClearProcessed(u.path)

	if u.removed {
		delete(s.tasks, u.path)
		slog.DebugContext(ctx, "task removed", "task", u.path)
		return
	}

	s.tasks[u.path] = u.task
	now := s.opts.Now()
	queued := s.queueTask(ctx, u.task, now, now.Add(s.opts.Window))
	slog.DebugContext(ctx,
		"task reminders re-evaluated",
		"task", u.path,
		"queued", queued)
}

// rescan is the authoritative rebuild: pending items are thrown away
// and every reminder due within the look-ahead window is queued anew.
// A source failure keeps the current queue; a stale queue beats an
// empty one.
func (s *Scheduler) rescan(ctx context.Context, now time.Time) {
	tasks, err := s.source.Tasks(ctx)
	if err != nil {
		slog.ErrorContext(ctx,
			"broad rescan failed, keeping current queue",
			"err", err)
		return
	}

	s.queue.Clear()
	s.tasks = make(map[string]Task, len(tasks))

	horizon := now.Add(s.opts.Window)
	queued := 0
	for _, task := range tasks {
		s.tasks[task.Path] = task
		queued += s.queueTask(ctx, task, now, horizon)
	}

	slog.DebugContext(ctx,
		"broad rescan complete",
		"tasks", len(tasks),
		"queued", queued,
		"window", s.opts.Window)
}

// queueTask queues the task's reminders with fire times inside
// [now, horizon]. One malformed reminder never stops the scan; it is
// logged and suppressed.
func (s *Scheduler) queueTask(ctx context.Context, task Task, now, horizon time.Time) int {
	queued := 0
	for _, r := range task.Reminders {
		fireAt, ok, err := FireTime(task, r)
		if err != nil {
			slog.WarnContext(ctx,
				"suppressing malformed reminder",
				"task", task.Path,
				"reminder", r.ID,
				"err", err)
			continue
		}
		if !ok {
			// Anchor missing; the reminder is inert until the task
			// gains the date it measures from.
			continue
		}
		if fireAt.Before(now) || fireAt.After(horizon) {
			continue
		}
		if s.queue.Push(Item{TaskPath: task.Path, Reminder: r, FireAt: fireAt}) {
			queued++
		}
	}
	return queued
}

// fireDue pops everything due at now and delivers each item exactly
// once.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	for _, it := range s.queue.PopDue(now) {
		s.queue.MarkProcessed(it.Key(), now)
		s.fire(ctx, it)
	}
}

// fire delivers one notification, falling back to an in-process log
// notice when delivery fails.
func (s *Scheduler) fire(ctx context.Context, it Item) {
	task, ok := s.tasks[it.TaskPath]
	if !ok {
		task = Task{Path: it.TaskPath}
	}

	n := Notification{
		TaskPath: it.TaskPath,
		Title:    titleOf(task),
		Message:  Message(task, it.Reminder, it.FireAt),
		Reminder: it.Reminder,
		FireAt:   it.FireAt,
	}

	if err := s.notify(ctx, n); err != nil {
		slog.WarnContext(ctx,
			"notification delivery failed, falling back to log notice",
			"task", n.TaskPath,
			"reminder", n.Reminder.ID,
			"err", err)
		slog.InfoContext(ctx, n.Message,
			"task", n.TaskPath,
			"fire_at", n.FireAt)
	}
}

// recoverFromGap handles a detected suspension. Items that came due
// while the process slept are marked missed rather than fired; a flood
// of stale notifications on wake helps nobody. Processed keys are then
// re-validated against current task data.
func (s *Scheduler) recoverFromGap(ctx context.Context, now time.Time) {
	for _, it := range s.queue.PopDue(now) {
		s.queue.MarkProcessed(it.Key(), now)
		slog.WarnContext(ctx,
			"reminder missed during suspension",
			"task", it.TaskPath,
			"reminder", it.Reminder.ID,
			"fire_at", it.FireAt)
	}
	s.revalidateProcessed(ctx, now)
}

// revalidateProcessed recomputes fire times for every processed key.
// A key whose fire time still lies in the past stays processed: it
// either fired before the gap or was just marked missed. A key whose
// reminder now resolves to a future instant was rescheduled while we
// slept, so it is cleared and may fire again. Keys whose task or
// reminder no longer exists, or no longer resolves, are forgotten.
func (s *Scheduler) revalidateProcessed(ctx context.Context, now time.Time) {
	if s.queue.ProcessedCount() == 0 {
		return
	}

	tasks, err := s.source.Tasks(ctx)
	if err != nil {
		slog.ErrorContext(ctx,
			"skipping processed-key revalidation",
			"err", err)
		return
	}

	type owned struct {
		task Task
		rem  Reminder
	}
	index := make(map[Key]owned)
	for _, t := range tasks {
		for _, r := range t.Reminders {
			index[Key{TaskPath: t.Path, ReminderID: r.ID}] = owned{task: t, rem: r}
		}
	}

	s.queue.ForEachProcessed(func(k Key, _ time.Time) {
		o, ok := index[k]
		if !ok {
			s.queue.ForgetProcessed(k)
			return
		}
		fireAt, ok, err := FireTime(o.task, o.rem)
		if err != nil || !ok {
			s.queue.ForgetProcessed(k)
			return
		}
		if fireAt.After(now) {
			s.queue.ForgetProcessed(k)
		}
	})
}
