package calendar

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"
)

const (
	// MaxInstances caps how many concrete instances one base component
	// may emit, so unbounded rules always terminate.
	MaxInstances = 100
	// ExpandHorizon bounds how far past now expansion will look.
	ExpandHorizon = 365 * Day
)

// ErrNonIncreasingRule reports a recurrence iterator that yielded
// instants out of order, which breaks the rule library's contract and
// would make instance ordinals meaningless.
var ErrNonIncreasingRule = errors.New("recurrence iterator yielded non-increasing instants")

// instantKey is the canonical form that exception dates and override
// targets are matched in. Everything is compared in UTC so that the
// same instant written with different TZIDs still matches.
func instantKey(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// expandComponent turns one base component and its overrides, keyed by
// canonical instant, into concrete event instances.
//
// Ordinals count emitted instances only: excluded occurrences do not
// consume one, so an unchanged feed yields the same IDs on every
// refresh.
func expandComponent(subscriptionID string, base component, overrides map[string]component, opts ExpandOptions) ([]Event, error) {
	if base.rrule == "" {
		return []Event{base.instance(subscriptionID, 0, base.start, base.end)}, nil
	}

	opt, err := rrule.StrToROption(base.rrule)
	if err != nil {
		return nil, errors.Wrapf(err, "bad RRULE %q", base.rrule)
	}
	opt.Dtstart = base.start

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, errors.Wrapf(err, "bad RRULE %q", base.rrule)
	}

	var duration time.Duration
	if !base.end.IsZero() {
		duration = base.end.Sub(base.start)
	}
	horizon := opts.Now.Add(ExpandHorizon)

	events := make([]Event, 0, 8)
	next := rule.Iterator()
	var prev time.Time

	for len(events) < MaxInstances {
		instant, ok := next()
		if !ok {
			break
		}
		if instant.After(horizon) {
			break
		}
		if !prev.IsZero() && !instant.After(prev) {
			return nil, errors.Wrapf(ErrNonIncreasingRule, "%v then %v", prev, instant)
		}
		prev = instant

		key := instantKey(instant)
		if _, excluded := base.exceptions[key]; excluded {
			continue
		}

		if ov, ok := overrides[key]; ok {
			// The override replaces this occurrence entirely, including
			// its instants, but keeps the base ordinal.
			events = append(events, ov.instance(subscriptionID, len(events), ov.start, ov.end))
			continue
		}

		var end time.Time
		if !base.end.IsZero() {
			end = instant.Add(duration)
		}
		events = append(events, base.instance(subscriptionID, len(events), instant, end))
	}

	return events, nil
}

// instance materializes one concrete Event from the component.
func (c component) instance(subscriptionID string, ordinal int, start, end time.Time) Event {
	return Event{
		SubscriptionID: subscriptionID,
		ID:             instanceID(c.uid, ordinal),
		Title:          c.summary,
		Description:    c.description,
		Location:       c.location,
		URL:            c.url,
		StartsAt:       start,
		EndsAt:         end,
		AllDay:         c.allDay,
	}
}

func instanceID(uid string, ordinal int) string {
	return fmt.Sprintf("%s#%d", uid, ordinal)
}
