package internal

import (
	"fmt"
	"time"
)

const (
	// DisplayTimeFormat is the standard time format used across the application
	DisplayTimeFormat = "2006-01-02 15:04:05 MST"
	// LogTimeFormat is the short time format used in log lines
	LogTimeFormat = "15:04:05"
)

// FormatLocal formats the given time in the display format, local time zone
func FormatLocal(t time.Time) string {
	return t.Local().Format(DisplayTimeFormat)
}

// FormatLogTime formats the given time in the short log format
func FormatLogTime(t time.Time) string {
	return t.Local().Format(LogTimeFormat)
}

// FormatRemaining renders the time left until t, e.g. "1h5m left" or "expired".
func FormatRemaining(t time.Time, now time.Time) string {
	diff := t.Sub(now)
	if diff <= 0 {
		return "expired"
	}
	h := int(diff.Hours())
	m := int(diff.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm left", m)
	}
	return fmt.Sprintf("%dh%dm left", h, m)
}
