package output

import (
	"fmt"
	"time"
)

// LocalTimeFormat renders timestamps in the caller's zone.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// Uptime renders d as "3d 4h 5m 6s", dropping leading zero units.
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days, rem := total/86400, total%86400
	h, m, s := rem/3600, rem%3600/60, rem%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// LocalTime renders t in local time, or "-" for the zero time.
func LocalTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(LocalTimeFormat)
}
