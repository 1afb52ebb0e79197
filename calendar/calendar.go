// Package calendar expands iCalendar subscription feeds into concrete
// event instances and keeps a per-subscription cache of the result,
// refreshed on a schedule.
package calendar

import (
	"cmp"
	"time"
)

// Day is a day duration.
const Day = 24 * time.Hour

// Event is one concrete calendar instance produced by feed expansion.
// Recurring components emit several of these, one per occurrence.
// Events are immutable once cached; a refresh replaces a subscription's
// events wholesale.
type Event struct {
	// SubscriptionID names the subscription the event came from.
	SubscriptionID string
	// ID is stable across refreshes for an unchanged feed: the source
	// component's UID plus the ordinal of this instance.
	ID string

	Title       string
	Description string
	Location    string
	URL         string

	StartsAt time.Time
	// EndsAt is zero when the source component carried no end.
	EndsAt time.Time
	// AllDay marks date-only events, anchored at local midnight.
	AllDay bool
}

// CompareEvent compares two events by start time.
func CompareEvent(a, b Event) int { return CompareTime(a.StartsAt, b.StartsAt) }

// CompareTime compares two times.
func CompareTime(a, b time.Time) int { return cmp.Compare(a.UnixNano(), b.UnixNano()) }
