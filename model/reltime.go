package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var relativeRe = regexp.MustCompile(`(\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago`)

// Months and years are approximated as 30 and 365 days.
var unitDurations = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// unit order from large to small, used when rendering
var unitOrder = []string{"year", "month", "week", "day", "hour", "minute", "second"}

// ParseRelative converts strings like "3 days ago" into an absolute time,
// relative to now. The second return value is false when s does not contain
// a relative time.
func ParseRelative(s string, now time.Time) (time.Time, bool) {
	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	unit := unitDurations[m[2]]
	if n > int64(1<<62)/int64(unit) {
		return time.Time{}, false
	}

	return now.Add(-time.Duration(n) * unit), true
}

// FormatRelative renders t as the largest whole unit before now, in the same
// grammar ParseRelative accepts. Times in the future render as "0 seconds ago".
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	for _, name := range unitOrder {
		unit := unitDurations[name]
		if d < unit {
			continue
		}
		n := int64(d / unit)
		if n == 1 {
			return fmt.Sprintf("1 %s ago", name)
		}
		return fmt.Sprintf("%d %ss ago", n, name)
	}

	return "0 seconds ago"
}
