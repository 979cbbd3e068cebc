// Package timeparse normalizes the loosely-typed date and time values that
// arrive on booking requests into a canonical (calendar day, "HH:MM") pair.
package timeparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time")
)

var (
	slashDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	clockRe     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	numericRe   = regexp.MustCompile(`^\d{3,4}$`)
)

// NormalizeDate accepts a time.Time, an epoch-millisecond number, or a string
// (ISO-8601 date or date-time, or a slash-separated numeric date) and returns
// the calendar day truncated to midnight UTC.
//
// Slash dates are tried day/month/year first and month/day/year only when the
// day-first reading is not a valid calendar date. For inputs where both
// readings are valid (e.g. "05/10/2025") the day-first reading wins; callers
// that need an unambiguous contract should send ISO dates.
func NormalizeDate(input any) (time.Time, error) {
	switch v := input.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, ErrInvalidDate
		}
		return Truncate(v), nil
	case float64:
		return Truncate(time.UnixMilli(int64(v)).UTC()), nil
	case int:
		return Truncate(time.UnixMilli(int64(v)).UTC()), nil
	case int64:
		return Truncate(time.UnixMilli(v).UTC()), nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, ErrInvalidDate
		}
		return Truncate(time.UnixMilli(ms).UTC()), nil
	case string:
		return normalizeDateString(strings.TrimSpace(v))
	default:
		return time.Time{}, ErrInvalidDate
	}
}

func normalizeDateString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Truncate(t), nil
		}
	}

	m := slashDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, ErrInvalidDate
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	// Day-first, then month-first as the fallback when day-first is not a
	// real calendar date (e.g. "23/10/2025" can only be day-first).
	if t, ok := calendarDate(year, second, first); ok {
		return t, nil
	}
	if t, ok := calendarDate(year, first, second); ok {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}

func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. Feb 30 -> Mar 2); reject those.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeTime accepts an "HH:MM" string (single-digit hour tolerated) or a
// 3-4 digit numeral, as a string or number, and returns zero-padded "HH:MM".
func NormalizeTime(input any) (string, error) {
	switch v := input.(type) {
	case string:
		return normalizeTimeString(strings.TrimSpace(v))
	case float64:
		return normalizeTimeString(strconv.Itoa(int(v)))
	case int:
		return normalizeTimeString(strconv.Itoa(v))
	case json.Number:
		return normalizeTimeString(v.String())
	default:
		return "", ErrInvalidTime
	}
}

func normalizeTimeString(s string) (string, error) {
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return clock(hour, minute)
	}
	if numericRe.MatchString(s) {
		if len(s) == 3 {
			s = "0" + s
		}
		hour, _ := strconv.Atoi(s[:2])
		minute, _ := strconv.Atoi(s[2:])
		return clock(hour, minute)
	}
	return "", ErrInvalidTime
}

func clock(hour, minute int) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", ErrInvalidTime
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// NormalizeDateTime normalizes both inputs together; either failing fails the pair.
func NormalizeDateTime(dateInput, timeInput any) (time.Time, string, error) {
	date, err := NormalizeDate(dateInput)
	if err != nil {
		return time.Time{}, "", err
	}
	hhmm, err := NormalizeTime(timeInput)
	if err != nil {
		return time.Time{}, "", err
	}
	return date, hhmm, nil
}

// Truncate strips the time of day, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsValidFutureDate reports whether date is today or later, comparing calendar
// days only. With allowToday false, today also fails.
func IsValidFutureDate(date, now time.Time, allowToday bool) bool {
	d := Truncate(date)
	n := Truncate(now)
	if d.Equal(n) {
		return allowToday
	}
	return d.After(n)
}

// Combine merges a calendar date with an "HH:MM" string into a single instant.
func Combine(date time.Time, hhmm string) time.Time {
	d := Truncate(date)
	m := clockRe.FindStringSubmatch(hhmm)
	if m == nil {
		return d
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// FormatDate renders the calendar date as YYYY-MM-DD for responses.
func FormatDate(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}
