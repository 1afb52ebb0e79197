// Package duration parses and renders signed ISO 8601 durations of the
// kind used for reminder offsets, such as "-PT15M" or "P1DT6H".
package duration

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidDuration is returned for input that does not match the
// [-]P[nY][nM][nW][nD][T[nH][nM][nS]] grammar.
var ErrInvalidDuration = errors.New("invalid ISO 8601 duration")

// Calendar units have no exact length; years and months use the usual
// fixed approximations.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

type unitSpec struct {
	designator byte
	unit       time.Duration
}

var (
	dateUnits = []unitSpec{{'Y', year}, {'M', month}, {'W', week}, {'D', day}}
	timeUnits = []unitSpec{{'H', time.Hour}, {'M', time.Minute}, {'S', time.Second}}
)

// Parse converts a signed ISO 8601 duration into a time.Duration. A
// leading '-' negates the whole value, so "-PT15M" means fifteen
// minutes before the anchor it is applied to.
func Parse(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, errors.Wrap(ErrInvalidDuration, "empty string")
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", orig)
	}
	s = s[1:]

	datePart, timePart, hasTime := strings.Cut(s, "T")

	total, nDate, err := parseComponents(datePart, dateUnits)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", orig)
	}
	var nTime int
	if hasTime {
		var timeTotal time.Duration
		timeTotal, nTime, err = parseComponents(timePart, timeUnits)
		if err != nil || nTime == 0 {
			return 0, errors.Wrapf(ErrInvalidDuration, "%q", orig)
		}
		total += timeTotal
	}
	if nDate+nTime == 0 {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", orig)
	}

	if neg {
		total = -total
	}
	return total, nil
}

// parseComponents scans "<digits><designator>" groups against units,
// which must appear in order and at most once each.
func parseComponents(s string, units []unitSpec) (time.Duration, int, error) {
	var total time.Duration
	var value int64
	digits := 0
	groups := 0
	next := 0 // first unit still allowed

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			value = value*10 + int64(c-'0')
			digits++
			continue
		}
		if digits == 0 {
			return 0, 0, errors.Errorf("designator %q without a value", c)
		}
		matched := -1
		for j := next; j < len(units); j++ {
			if units[j].designator == c {
				matched = j
				break
			}
		}
		if matched < 0 {
			return 0, 0, errors.Errorf("unexpected designator %q", c)
		}
		total += time.Duration(value) * units[matched].unit
		value, digits = 0, 0
		groups++
		next = matched + 1
	}
	if digits > 0 {
		return 0, 0, errors.New("trailing digits without a designator")
	}
	return total, groups, nil
}

// Format renders d as a signed ISO 8601 duration, truncated to whole
// seconds. The zero duration renders as "PT0S".
func Format(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	d = d.Truncate(time.Second)

	b.WriteByte('P')
	if days := d / day; days > 0 {
		writeComponent(&b, int64(days), 'D')
		d -= days * day
	}
	if d > 0 || b.Len() <= 2 {
		b.WriteByte('T')
		if h := d / time.Hour; h > 0 {
			writeComponent(&b, int64(h), 'H')
			d -= h * time.Hour
		}
		if m := d / time.Minute; m > 0 {
			writeComponent(&b, int64(m), 'M')
			d -= m * time.Minute
		}
		if s := d / time.Second; s > 0 || b.String() == "PT" || b.String() == "-PT" {
			writeComponent(&b, int64(s), 'S')
		}
	}
	return b.String()
}

func writeComponent(b *strings.Builder, n int64, designator byte) {
	var buf [20]byte
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(buf[i:])
	b.WriteByte(designator)
}
