package calendar

import (
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/pkg/errors"
)

// tzRegistry resolves TZID parameters against the VTIMEZONE components
// embedded in a feed, falling back to the system timezone database.
type tzRegistry struct {
	zones map[string]*time.Location
}

func newTZRegistry(cal *ical.Calendar) *tzRegistry {
	r := &tzRegistry{zones: make(map[string]*time.Location)}
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		idProp := child.Props.Get(ical.PropTimezoneID)
		if idProp == nil || idProp.Value == "" {
			continue
		}
		r.zones[idProp.Value] = locationForVTimezone(idProp.Value, child)
	}
	return r
}

// locationForVTimezone prefers the IANA zone named by the TZID. Custom
// TZIDs fall back to a fixed zone built from the STANDARD offset, which
// loses DST transitions but keeps the instants right for the common
// season.
func locationForVTimezone(tzid string, comp *ical.Component) *time.Location {
	if loc, err := time.LoadLocation(tzid); err == nil {
		return loc
	}
	for _, sub := range comp.Children {
		if sub.Name != "STANDARD" {
			continue
		}
		off := sub.Props.Get("TZOFFSETTO")
		if off == nil {
			continue
		}
		if secs, err := parseUTCOffset(off.Value); err == nil {
			return time.FixedZone(tzid, secs)
		}
	}
	return time.UTC
}

// parseUTCOffset parses the iCalendar UTC offset form, +/-HHMM[SS].
func parseUTCOffset(v string) (int, error) {
	if len(v) != 5 && len(v) != 7 {
		return 0, errors.Errorf("bad UTC offset %q", v)
	}
	sign := 1
	switch v[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, errors.Errorf("bad UTC offset %q", v)
	}

	hours, err1 := strconv.Atoi(v[1:3])
	minutes, err2 := strconv.Atoi(v[3:5])
	seconds := 0
	var err3 error
	if len(v) == 7 {
		seconds, err3 = strconv.Atoi(v[5:7])
	}
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, errors.Errorf("bad UTC offset %q", v)
	}

	return sign * (hours*3600 + minutes*60 + seconds), nil
}

func (r *tzRegistry) location(tzid string, fallback *time.Location) *time.Location {
	if loc, ok := r.zones[tzid]; ok {
		return loc
	}
	if loc, err := time.LoadLocation(tzid); err == nil {
		return loc
	}
	return fallback
}

// instant interprets one date or date-time property value. The bool
// result reports all-day (date-only) values, which anchor at midnight
// in the effective location.
func (r *tzRegistry) instant(prop *ical.Prop, fallback *time.Location) (time.Time, bool, error) {
	return r.parseValue(strings.TrimSpace(prop.Value), prop, fallback)
}

// instantList interprets a multi-valued date list property such as
// EXDATE. Values that fail to parse are skipped.
func (r *tzRegistry) instantList(prop ical.Prop, fallback *time.Location) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(prop.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, _, err := r.parseValue(part, &prop, fallback)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *tzRegistry) parseValue(value string, prop *ical.Prop, fallback *time.Location) (time.Time, bool, error) {
	loc := fallback
	if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
		loc = r.location(tzid, fallback)
	}

	switch {
	case strings.EqualFold(prop.Params.Get(ical.ParamValue), "DATE") || !strings.Contains(value, "T"):
		t, err := time.ParseInLocation("20060102", value, loc)
		return t, true, errors.Wrapf(err, "bad date %q", value)

	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, errors.Wrapf(err, "bad UTC date-time %q", value)

	default:
		t, err := time.ParseInLocation("20060102T150405", value, loc)
		return t, false, errors.Wrapf(err, "bad date-time %q", value)
	}
}
