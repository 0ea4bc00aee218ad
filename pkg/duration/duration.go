// Package duration parses and formats human-readable durations. It extends
// time.ParseDuration with days, weeks, months and years, and accepts units
// written out as words: "30 days", "2 weeks", "1w2d12h" and "720h" all parse.
// Months are 30 days and years 365 days.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// extendedHours maps the units time.ParseDuration does not know to their
// length in hours.
var extendedHours = map[string]int64{
	"y": 365 * 24, "yr": 365 * 24, "yrs": 365 * 24, "year": 365 * 24, "years": 365 * 24,
	"mo": 30 * 24, "mos": 30 * 24, "month": 30 * 24, "months": 30 * 24,
	"w": 7 * 24, "wk": 7 * 24, "wks": 7 * 24, "week": 7 * 24, "weeks": 7 * 24,
	"d": 24, "day": 24, "days": 24,
}

// wordUnits maps spelled-out standard units to the short forms
// time.ParseDuration accepts.
var wordUnits = map[string]string{
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m",
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
	"millisecond": "ms", "milliseconds": "ms", "milli": "ms", "millis": "ms",
	"microsecond": "us", "microseconds": "us", "micro": "us", "micros": "us",
	"nanosecond": "ns", "nanoseconds": "ns", "nano": "ns", "nanos": "ns",
}

var (
	extendedPattern = regexp.MustCompile(`(?i)(\d+)\s*(years?|yrs?|y|months?|mos?|mo|weeks?|wks?|w|days?|d)`)
	wordPattern     = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?|milliseconds?|millis?|microseconds?|micros?|nanoseconds?|nanos?)`)
)

// Parse parses a human-readable duration string. Extended units are folded
// into hours, spelled-out standard units are shortened, and the remainder is
// handed to time.ParseDuration. Whitespace between number and unit is
// optional.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}
	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	var totalHours int64
	rest := extendedPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := extendedPattern.FindStringSubmatch(match)
		value, _ := strconv.ParseInt(m[1], 10, 64)
		if mult, ok := extendedHours[strings.ToLower(m[2])]; ok {
			totalHours += value * mult
		}
		return ""
	})

	rest = wordPattern.ReplaceAllStringFunc(rest, func(match string) string {
		m := wordPattern.FindStringSubmatch(match)
		if short, ok := wordUnits[strings.ToLower(m[2])]; ok {
			return m[1] + short
		}
		return match
	})

	// time.ParseDuration rejects spaces between components.
	rest = strings.Join(strings.Fields(rest), "")

	var spec string
	if totalHours > 0 {
		spec = fmt.Sprintf("%dh", totalHours)
	}
	spec += rest
	if spec == "" {
		spec = "0s"
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	if negative {
		d = -d
	}
	return d, nil
}

// MustParse is Parse that panics on error. For constants only.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration using the largest fitting units and omits zero
// components: 90 minutes becomes "1h30m", 30 days becomes "1mo".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	neg := ""
	if d < 0 {
		neg, d = "-", -d
	}

	var b strings.Builder
	for _, u := range []struct {
		size time.Duration
		name string
	}{
		{Year, "y"}, {Month, "mo"}, {Week, "w"}, {Day, "d"},
		{time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"},
		{time.Millisecond, "ms"}, {time.Microsecond, "µs"}, {time.Nanosecond, "ns"},
	} {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.name)
			d -= n * u.size
		}
	}

	if b.Len() == 0 {
		return "0s"
	}
	return neg + b.String()
}
