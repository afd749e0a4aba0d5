// Package timeparse normalizes free-text quiz schedules like
// "Thursday 7:00 PM", "Tuesdays from 7.30pm" or "8pm" into a weekday number
// and a 24-hour clock time.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultStartTime is used when a time cannot be parsed at all. Callers log
// a warning but never fail on it.
const DefaultStartTime = "20:00"

// Weekday numbers follow ISO-8601: Monday=1 .. Sunday=7.
var weekdayNums = map[string]int{
	"monday": 1, "mon": 1,
	"tuesday": 2, "tues": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thurs": 4, "thur": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
	"sunday": 7, "sun": 7,
}

var (
	// Full names first so "tuesdays" resolves before the "tue" abbreviation.
	weekdayRegex = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)s?\b`)

	// Matches "7", "7pm", "7:30", "7.30pm", "19:00", "7:00 PM" etc.
	timeRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm)?\b`)
)

// Schedule is the normalized form of a free-text recurring schedule.
type Schedule struct {
	DayOfWeek int    // 1-7 Monday=1, 0 when no weekday found
	StartTime string // "HH:MM" 24h
}

// Parse extracts the weekday and start time from free text. A missing or
// unparseable time falls back to DefaultStartTime and ok=false; the weekday
// is best effort and may be 0. Parse never returns an error: a venue with a
// garbled schedule is still worth saving.
func Parse(text string) (Schedule, bool) {
	s := Schedule{StartTime: DefaultStartTime}

	if m := weekdayRegex.FindStringSubmatch(text); m != nil {
		s.DayOfWeek = weekdayNums[strings.ToLower(m[1])]
	}

	t, ok := ParseTime(text)
	if ok {
		s.StartTime = t
	}
	return s, ok
}

// ParseTime normalizes a clock time out of free text to 24-hour "HH:MM".
// Times with no AM/PM marker are assumed PM for hours 1-11. That heuristic
// matches upstream listings (quiz nights are evening events) but is wrong
// for genuine morning times; do not "fix" it without product confirmation.
func ParseTime(text string) (string, bool) {
	m := timeRegex.FindStringSubmatch(text)
	if m == nil {
		return DefaultStartTime, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return DefaultStartTime, false
	}

	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return DefaultStartTime, false
		}
	}

	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		// Assumed-PM heuristic for bare 12-hour times
		if hour >= 1 && hour <= 11 {
			hour += 12
		}
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
