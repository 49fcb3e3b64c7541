// Package utils provides small formatting helpers shared by the console-facing
// packages.
package utils

import (
	"fmt"
	"time"
)

const (
	// ClockLayout is the layout of per-message timestamps (millisecond precision).
	ClockLayout = "15:04:05.000"

	// DateTimeLayout is the layout of connection timestamps.
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ClockStamp formats t as HH:MM:SS.mmm.
//
// Parameters:
//   - t: The instant to format
//
// Returns:
//   - The wall-clock time with millisecond precision
func ClockStamp(t time.Time) string {
	return t.Format(ClockLayout)
}

// DateTimeStamp formats t as YYYY-MM-DD HH:MM:SS.
func DateTimeStamp(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// FormatUptime renders d without sub-second precision as H:MM:SS, prefixed
// with a day count once d reaches 24 hours ("1 day, 2:03:04",
// "3 days, 0:00:10"). Negative durations render as 0:00:00.
//
// Parameters:
//   - d: The elapsed duration
//
// Returns:
//   - The formatted uptime
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	clock := fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
