package reminder

import (
	"slices"
	"sort"
	"time"
)

// Key identifies one concrete reminder of one task. Keys are how the
// queue remembers what already fired.
type Key struct {
	TaskPath   string
	ReminderID string
}

// Item is one pending notification in the live queue. Items are
// transient; a broad rescan rebuilds them from task data.
type Item struct {
	TaskPath string
	Reminder Reminder
	FireAt   time.Time
}

// Key returns the item's dedup key.
func (it Item) Key() Key {
	return Key{TaskPath: it.TaskPath, ReminderID: it.Reminder.ID}
}

// Queue is the time-sorted pending set plus the processed set of keys
// that already fired. It is owned by the scheduler goroutine and needs
// no locking of its own.
type Queue struct {
	items     []Item
	processed map[Key]time.Time // when each key was marked
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{processed: make(map[Key]time.Time)}
}

// Push inserts the item keeping ascending fire-time order. Items whose
// key is already queued or already processed are refused.
func (q *Queue) Push(item Item) bool {
	if _, done := q.processed[item.Key()]; done {
		return false
	}
	for _, it := range q.items {
		if it.Key() == item.Key() {
			return false
		}
	}
	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].FireAt.After(item.FireAt)
	})
	q.items = slices.Insert(q.items, i, item)
	return true
}

// PopDue removes and returns every item due at now. The queue is kept
// sorted, so the scan stops at the first future item.
func (q *Queue) PopDue(now time.Time) []Item {
	n := 0
	for n < len(q.items) && !q.items[n].FireAt.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	due := slices.Clone(q.items[:n])
	q.items = slices.Delete(q.items, 0, n)
	return due
}

// Next returns the earliest pending item without removing it.
func (q *Queue) Next() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Len reports how many items are pending.
func (q *Queue) Len() int {
	return len(q.items)
}

// RemoveTask drops every queued item belonging to the task path.
func (q *Queue) RemoveTask(path string) {
	q.items = slices.DeleteFunc(q.items, func(it Item) bool {
		return it.TaskPath == path
	})
}

// Clear empties the pending items. The processed set survives; it has
// its own lifecycle.
func (q *Queue) Clear() {
	q.items = q.items[:0]
}

// MarkProcessed records that the key fired, or was deliberately
// skipped, at now. It will not queue again until cleared.
func (q *Queue) MarkProcessed(k Key, now time.Time) {
	q.processed[k] = now
}

// Processed reports whether the key already fired.
func (q *Queue) Processed(k Key) bool {
	_, ok := q.processed[k]
	return ok
}

// ClearProcessed forgets every processed key belonging to the task
// path, so an edited task's reminders may fire again.
func (q *Queue) ClearProcessed(path string) {
	for k := range q.processed {
		if k.TaskPath == path {
			delete(q.processed, k)
		}
	}
}

// ForgetProcessed drops one processed key, allowing it to fire again.
func (q *Queue) ForgetProcessed(k Key) {
	delete(q.processed, k)
}

// ProcessedCount reports how many keys are marked processed.
func (q *Queue) ProcessedCount() int {
	return len(q.processed)
}

// ForEachProcessed calls fn for every processed key with the time it
// was marked. Forgetting the current key inside fn is allowed.
func (q *Queue) ForEachProcessed(fn func(k Key, markedAt time.Time)) {
	for k, at := range q.processed {
		fn(k, at)
	}
}
