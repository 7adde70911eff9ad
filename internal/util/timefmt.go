package util

import "time"

// FormatDateTime renders a timestamp for tables in local time. The zero
// time renders empty.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("Jan 2, 15:04")
}
