package scoring

import (
	"regexp"
	"strings"
	"time"
)

var (
	deadlineDateRe = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
	deadlineDaysRe = regexp.MustCompile(`(?i)\d+\s*d[ií]as?`)
)

// Agreement statuses
const (
	StatusDone     = "Cumplido"
	StatusNoDate   = "Sin fecha"
	StatusOverdue  = "Vencido"
	StatusDueSoon  = "Por vencer"
	StatusOnTrack  = "En curso"
	StatusHeadroom = "Con holgura"
)

// SplitDeadline splits a free-text deadline into a days part and a limit date part.
// "15 días" goes to days, "30/10/2025" to date, any other text (e.g. "Permanente") to days.
func SplitDeadline(text string) (days, date string) {
	text = strings.TrimSpace(text)
	if m := deadlineDateRe.FindString(text); m != "" {
		return "", m
	}
	if m := deadlineDaysRe.FindString(text); m != "" {
		return m, ""
	}
	return text, ""
}

// ParseLimitDate parses a day-first d/m/y limit date; two-digit years are 20xx
func ParseLimitDate(text string) (time.Time, bool) {
	m := deadlineDateRe.FindString(strings.TrimSpace(text))
	if m == "" {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(text)); err == nil {
			return t, true
		}
		return time.Time{}, false
	}
	for _, layout := range []string{"2/1/2006", "2/1/06"} {
		if t, err := time.Parse(layout, m); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysLeft whole calendar days from today to limit (negative when overdue)
func DaysLeft(limit, today time.Time) int {
	l := time.Date(limit.Year(), limit.Month(), limit.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(l.Sub(t).Hours() / 24)
}

// DeadlineStatus SLA status of an agreement. A verified agreement is done regardless of dates.
func DeadlineStatus(limit time.Time, verified bool, today time.Time) string {
	if verified {
		return StatusDone
	}
	if limit.IsZero() {
		return StatusNoDate
	}
	switch d := DaysLeft(limit, today); {
	case d < 0:
		return StatusOverdue
	case d <= 3:
		return StatusDueSoon
	case d <= 10:
		return StatusOnTrack
	default:
		return StatusHeadroom
	}
}
