// Package format provides human-readable formatting helpers for sizes,
// counts, schedules and timestamps.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Bytes formats a byte count into human-readable form.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	sizes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), sizes[exp])
}

var printer = message.NewPrinter(language.English)

// Number formats a number with thousand separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// CronDescription returns a human-readable description of a 6-field cron
// expression (seconds minutes hours day-of-month month day-of-week).
// Example: CronDescription("0 0 3 * * *") => "Daily at 3AM"
// Expressions it cannot describe are returned unchanged.
func CronDescription(cronExpr string) string {
	fields := strings.Fields(strings.TrimSpace(cronExpr))
	if len(fields) != 6 {
		return cronExpr
	}
	sec, min, hour, dom, _, dow := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	if interval := stepInterval(sec); interval > 0 {
		return fmt.Sprintf("Every %d seconds", interval)
	}
	if min == "*" && hour == "*" {
		return "Every minute"
	}
	if interval := stepInterval(min); interval > 0 {
		return fmt.Sprintf("Every %d minutes", interval)
	}
	if interval := stepInterval(hour); interval > 0 {
		return fmt.Sprintf("Every %d hours", interval)
	}

	m, mErr := strconv.Atoi(min)
	if mErr != nil {
		return cronExpr
	}
	if hour == "*" {
		if m == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Every hour at :%02d", m)
	}

	h, hErr := strconv.Atoi(hour)
	if hErr != nil {
		return cronExpr
	}
	timeStr := clockTime(h, m)

	if dow != "*" && dom == "*" {
		if d, err := strconv.Atoi(dow); err == nil && d >= 0 && d < 7 {
			return fmt.Sprintf("%ss at %s", dayNames[d], timeStr)
		}
		return cronExpr
	}
	if dom != "*" {
		if d, err := strconv.Atoi(dom); err == nil {
			return fmt.Sprintf("%s of each month at %s", ordinal(d), timeStr)
		}
		return cronExpr
	}
	return fmt.Sprintf("Daily at %s", timeStr)
}

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// stepInterval returns N for "*/N" fields, 0 otherwise.
func stepInterval(field string) int {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func clockTime(hour, minute int) string {
	if hour == 0 && minute == 0 {
		return "midnight"
	}
	if hour == 12 && minute == 0 {
		return "noon"
	}

	period := "AM"
	hour12 := hour
	if hour >= 12 {
		period = "PM"
		if hour > 12 {
			hour12 = hour - 12
		}
	}
	if hour == 0 {
		hour12 = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", hour12, period)
	}
	return fmt.Sprintf("%d:%02d%s", hour12, minute, period)
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		if n%100 != 11 {
			suffix = "st"
		}
	case 2:
		if n%100 != 12 {
			suffix = "nd"
		}
	case 3:
		if n%100 != 13 {
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// RelativeTime formats a time as a relative duration from now.
// Example: RelativeTime(time.Now().Add(-5*time.Minute)) => "5 minutes ago"
func RelativeTime(t time.Time) string {
	diff := time.Since(t)
	if diff < 0 {
		return relativeUnits(-diff, "in %s")
	}
	if diff < time.Minute {
		return "just now"
	}
	return relativeUnits(diff, "%s ago")
}

func relativeUnits(d time.Duration, pattern string) string {
	var unit string
	var n int
	switch {
	case d < time.Minute:
		return fmt.Sprintf(pattern, "a moment")
	case d < time.Hour:
		unit, n = "minute", int(d.Minutes())
	case d < 24*time.Hour:
		unit, n = "hour", int(d.Hours())
	default:
		unit, n = "day", int(d.Hours()/24)
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf(pattern, fmt.Sprintf("%d %s", n, unit))
}
