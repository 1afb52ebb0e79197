package calendar

import (
	_ "embed"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

//go:embed weekly_override.ics
var weeklyOverrideICS []byte

//go:embed horizon.ics
var horizonICS []byte

//go:embed mixed.ics
var mixedICS []byte

//go:embed tz.ics
var tzICS []byte

var feedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func feedOpts() ExpandOptions {
	return ExpandOptions{Now: feedNow, Location: time.UTC}
}

func TestParseFeedWeeklyWithExceptionAndOverride(t *testing.T) {
	events, err := ParseFeed("cal-1", weeklyOverrideICS, feedOpts())
	assert.NoError(t, err)

	// Three generated instants: Jan 1 survives, Jan 8 is excluded, and
	// Jan 15 is replaced by the moved override. The override targeting
	// no generated instant must vanish entirely.
	assert.Equal(t, 2, len(events))

	first := events[0]
	assert.Equal(t, "weekly-standup#0", first.ID)
	assert.Equal(t, "cal-1", first.SubscriptionID)
	assert.Equal(t, "Weekly standup", first.Title)
	assert.True(t, first.StartsAt.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, first.EndsAt.Equal(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)))

	moved := events[1]
	assert.Equal(t, "weekly-standup#1", moved.ID)
	assert.Equal(t, "Weekly standup (moved)", moved.Title)
	assert.True(t, moved.StartsAt.Equal(time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)))
	assert.True(t, moved.EndsAt.Equal(time.Date(2024, 1, 16, 10, 30, 0, 0, time.UTC)))
}

func TestParseFeedInstanceCapAndHorizon(t *testing.T) {
	events, err := ParseFeed("cal-1", horizonICS, feedOpts())
	assert.NoError(t, err)

	var daily, weekly []Event
	for _, ev := range events {
		switch ev.Title {
		case "Morning exercise":
			daily = append(daily, ev)
		case "Weekly review":
			weekly = append(weekly, ev)
		default:
			t.Fatalf("unexpected event %q", ev.Title)
		}
	}

	// The unbounded daily rule hits the instance cap long before the
	// horizon does.
	assert.Equal(t, MaxInstances, len(daily))
	assert.Equal(t, "daily-exercise#0", daily[0].ID)
	assert.True(t, daily[0].EndsAt.IsZero())

	// The unbounded weekly rule is stopped by the 365-day horizon.
	assert.Equal(t, 53, len(weekly))
	horizon := feedNow.Add(ExpandHorizon)
	last := weekly[len(weekly)-1]
	assert.True(t, last.StartsAt.Equal(time.Date(2024, 12, 30, 16, 0, 0, 0, time.UTC)))
	assert.False(t, last.StartsAt.After(horizon))
	assert.True(t, last.EndsAt.Equal(last.StartsAt.Add(time.Hour)))
}

func TestParseFeedMixedComponents(t *testing.T) {
	events, err := ParseFeed("cal-1", mixedICS, feedOpts())
	assert.NoError(t, err)

	// The component with no DTSTART cannot be scheduled and is dropped;
	// the other two survive.
	assert.Equal(t, 2, len(events))

	floating := events[0]
	assert.Equal(t, "Floating meeting", floating.Title)
	assert.Equal(t, "Room 2", floating.Location)
	assert.False(t, floating.AllDay)
	assert.True(t, floating.StartsAt.Equal(time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)))
	assert.True(t, floating.EndsAt.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)))

	holiday := events[1]
	assert.Equal(t, "Office holiday", holiday.Title)
	assert.True(t, holiday.AllDay)
	assert.True(t, holiday.StartsAt.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, holiday.EndsAt.IsZero())
}

func TestParseFeedTimezones(t *testing.T) {
	events, err := ParseFeed("cal-1", tzICS, feedOpts())
	assert.NoError(t, err)
	assert.Equal(t, 2, len(events))

	byTitle := make(map[string]Event, len(events))
	for _, ev := range events {
		byTitle[ev.Title] = ev
	}

	// The custom TZID resolves through the embedded VTIMEZONE's
	// STANDARD offset of +0530.
	custom := byTitle["Custom zone meeting"]
	assert.True(t, custom.StartsAt.Equal(time.Date(2024, 4, 5, 3, 30, 0, 0, time.UTC)))

	// The IANA TZID resolves through the system zone database; June in
	// Los Angeles is UTC-7.
	la := byTitle["LA meeting"]
	assert.True(t, la.StartsAt.Equal(time.Date(2024, 6, 5, 16, 0, 0, 0, time.UTC)))
}

func TestParseFeedMalformedDocument(t *testing.T) {
	_, err := ParseFeed("cal-1", []byte("this is not an icalendar document\r\n"), feedOpts())
	assert.Error(t, err)

	_, err = ParseFeed("cal-1", nil, feedOpts())
	assert.Error(t, err)
}
