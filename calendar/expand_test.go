package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestInstantKey(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	key := instantKey(time.Date(2024, 1, 15, 10, 0, 0, 0, est))
	assert.Equal(t, "20240115T150000Z", key)

	// The same instant written in UTC produces the same key.
	assert.Equal(t, key, instantKey(time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)))
}

func TestExpandSingle(t *testing.T) {
	base := component{
		uid:     "one-off",
		summary: "Dentist",
		start:   time.Date(2024, 2, 1, 14, 0, 0, 0, time.UTC),
		end:     time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC),
	}

	events, err := expandComponent("sub", base, nil, ExpandOptions{Now: base.start, Location: time.UTC})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(events))
	assert.Equal(t, "one-off#0", events[0].ID)
	assert.Equal(t, "Dentist", events[0].Title)
	assert.True(t, events[0].StartsAt.Equal(base.start))
	assert.True(t, events[0].EndsAt.Equal(base.end))
}

func TestExpandOrdinalsSkipExclusions(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	base := component{
		uid:     "chore",
		summary: "Take out trash",
		start:   start,
		rrule:   "FREQ=DAILY;COUNT=5",
		exceptions: map[string]struct{}{
			"20240102T090000Z": {},
		},
	}

	events, err := expandComponent("sub", base, nil, ExpandOptions{Now: start, Location: time.UTC})
	assert.NoError(t, err)

	// The excluded occurrence does not consume an ordinal, so IDs stay
	// dense over emitted instances.
	assert.Equal(t, 4, len(events))
	wantDays := []int{1, 3, 4, 5}
	for i, ev := range events {
		assert.Equal(t, fmt.Sprintf("chore#%d", i), ev.ID)
		assert.True(t, ev.StartsAt.Equal(time.Date(2024, 1, wantDays[i], 9, 0, 0, 0, time.UTC)))
	}
}

func TestExpandOverrideKeepsOrdinal(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	base := component{
		uid:     "chore",
		summary: "Take out trash",
		start:   start,
		rrule:   "FREQ=DAILY;COUNT=5",
	}
	overrides := map[string]component{
		"20240103T090000Z": {
			uid:     "chore",
			summary: "Special pickup",
			start:   time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC),
		},
	}

	events, err := expandComponent("sub", base, overrides, ExpandOptions{Now: start, Location: time.UTC})
	assert.NoError(t, err)
	assert.Equal(t, 5, len(events))

	// Emission order follows the rule's instants; the override replaces
	// the third occurrence in place, ordinal included.
	ov := events[2]
	assert.Equal(t, "chore#2", ov.ID)
	assert.Equal(t, "Special pickup", ov.Title)
	assert.True(t, ov.StartsAt.Equal(time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)))

	assert.Equal(t, "chore#3", events[3].ID)
	assert.Equal(t, "Take out trash", events[3].Title)
	assert.True(t, events[3].StartsAt.Equal(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)))
}

func TestExpandExclusionBeatsOverride(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	base := component{
		uid:     "chore",
		summary: "Take out trash",
		start:   start,
		rrule:   "FREQ=DAILY;COUNT=3",
		exceptions: map[string]struct{}{
			"20240102T090000Z": {},
		},
	}
	overrides := map[string]component{
		"20240102T090000Z": {
			uid:     "chore",
			summary: "Should never appear",
			start:   time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
		},
	}

	events, err := expandComponent("sub", base, overrides, ExpandOptions{Now: start, Location: time.UTC})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(events))
	for _, ev := range events {
		assert.NotEqual(t, "Should never appear", ev.Title)
	}
}

func TestExpandCapsUnboundedRule(t *testing.T) {
	start := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	base := component{
		uid:   "exercise",
		start: start,
		rrule: "FREQ=DAILY",
	}

	events, err := expandComponent("sub", base, nil, ExpandOptions{Now: start, Location: time.UTC})
	assert.NoError(t, err)
	assert.Equal(t, MaxInstances, len(events))
	assert.Equal(t, fmt.Sprintf("exercise#%d", MaxInstances-1), events[len(events)-1].ID)
}

func TestExpandBadRule(t *testing.T) {
	base := component{
		uid:   "bad",
		start: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
		rrule: "FREQ=BOGUS",
	}

	_, err := expandComponent("sub", base, nil, ExpandOptions{Now: base.start, Location: time.UTC})
	assert.Error(t, err)
}
