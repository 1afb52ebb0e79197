package calendar

import (
	"bytes"
	"log/slog"
	"slices"
	"time"

	"github.com/emersion/go-ical"
	"github.com/pkg/errors"
)

// ExpandOptions anchor feed expansion.
type ExpandOptions struct {
	// Now anchors the expansion horizon. The zero value means time.Now().
	Now time.Time
	// Location interprets floating (zone-less) instants. Nil means
	// time.Local.
	Location *time.Location
}

func (o ExpandOptions) withDefaults() ExpandOptions {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// component is one VEVENT lifted out of a feed, normalized enough for
// expansion to work on.
type component struct {
	uid         string
	summary     string
	description string
	location    string
	url         string

	start  time.Time
	end    time.Time // zero when absent
	allDay bool

	rrule string
	// exceptions holds canonical instant keys from EXDATE.
	exceptions map[string]struct{}
	// recurrenceID is the canonical instant key of the occurrence this
	// component overrides; empty for base components.
	recurrenceID string
}

// ParseFeed parses raw iCalendar text and expands every base component
// into concrete instances, sorted by start time. A document that fails
// to decode fails the whole feed; a single malformed component only
// costs that component.
func ParseFeed(subscriptionID string, data []byte, opts ExpandOptions) ([]Event, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode feed")
	}
	return expandCalendar(subscriptionID, cal, opts.withDefaults()), nil
}

func expandCalendar(subscriptionID string, cal *ical.Calendar, opts ExpandOptions) []Event {
	// Timezone definitions must be registered before any instant in the
	// feed is interpreted.
	tz := newTZRegistry(cal)

	// First pass: split components into bases and overrides. Overrides
	// are keyed by UID and the canonical instant they replace.
	var bases []component
	overrides := make(map[string]map[string]component)

	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		c, err := parseComponent(child, tz, opts.Location)
		if err != nil {
			slog.Warn(
				"skipping malformed calendar component",
				"subscription", subscriptionID,
				"uid", textProp(child.Props, ical.PropUID),
				"err", err)
			continue
		}

		if c.recurrenceID != "" {
			m := overrides[c.uid]
			if m == nil {
				m = make(map[string]component)
				overrides[c.uid] = m
			}
			m[c.recurrenceID] = c
			continue
		}
		bases = append(bases, c)
	}

	// Second pass: expand each base against its overrides.
	var events []Event
	for _, base := range bases {
		instances, err := expandComponent(subscriptionID, base, overrides[base.uid], opts)
		if err != nil {
			slog.Warn(
				"skipping unexpandable event",
				"subscription", subscriptionID,
				"uid", base.uid,
				"err", err)
			continue
		}
		events = append(events, instances...)
	}

	slices.SortFunc(events, CompareEvent)
	return events
}

func parseComponent(comp *ical.Component, tz *tzRegistry, fallback *time.Location) (component, error) {
	var c component

	uid := comp.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return c, errors.New("missing UID")
	}
	c.uid = uid.Value

	c.summary = textProp(comp.Props, ical.PropSummary)
	c.description = textProp(comp.Props, ical.PropDescription)
	c.location = textProp(comp.Props, ical.PropLocation)
	c.url = textProp(comp.Props, ical.PropURL)

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		// Without a start anchor the event cannot be scheduled at all.
		return c, errors.New("missing DTSTART")
	}
	start, allDay, err := tz.instant(startProp, fallback)
	if err != nil {
		return c, errors.Wrap(err, "bad DTSTART")
	}
	c.start, c.allDay = start, allDay

	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		end, _, err := tz.instant(endProp, fallback)
		if err != nil {
			return c, errors.Wrap(err, "bad DTEND")
		}
		c.end = end
	}

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		c.rrule = p.Value
	}

	c.exceptions = make(map[string]struct{})
	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		// Unparseable exception values can never match a generated
		// instant, so they are dropped rather than failing the event.
		for _, t := range tz.instantList(p, fallback) {
			c.exceptions[instantKey(t)] = struct{}{}
		}
	}

	if p := comp.Props.Get(ical.PropRecurrenceID); p != nil {
		t, _, err := tz.instant(p, fallback)
		if err != nil {
			return c, errors.Wrap(err, "bad RECURRENCE-ID")
		}
		c.recurrenceID = instantKey(t)
	}

	return c, nil
}

func textProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	text, _ := prop.Text()
	return text
}
