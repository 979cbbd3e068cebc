package timeparse

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeDate_ISO(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-10-23", date(2025, time.October, 23)},
		{"2025-10-23T14:30:00Z", date(2025, time.October, 23)},
		{"2025-01-02T09:15:00", date(2025, time.January, 2)},
	}
	for _, tc := range cases {
		got, err := NormalizeDate(tc.in)
		if err != nil {
			t.Fatalf("NormalizeDate(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("NormalizeDate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDate_SlashDayFirst(t *testing.T) {
	// 23 cannot be a month, so only the day-first reading is valid.
	got, err := NormalizeDate("23/10/2025")
	if err != nil {
		t.Fatalf("NormalizeDate: %v", err)
	}
	if want := date(2025, time.October, 23); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeDate_SlashAmbiguousPrefersDayFirst(t *testing.T) {
	// Both readings are valid calendar dates; day-first wins.
	got, err := NormalizeDate("05/10/2025")
	if err != nil {
		t.Fatalf("NormalizeDate: %v", err)
	}
	if want := date(2025, time.October, 5); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeDate_SlashMonthFirstFallback(t *testing.T) {
	// Day-first would make 23 the month, so this resolves month-first.
	got, err := NormalizeDate("10/23/2025")
	if err != nil {
		t.Fatalf("NormalizeDate: %v", err)
	}
	if want := date(2025, time.October, 23); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeDate_EpochMillis(t *testing.T) {
	ms := float64(time.Date(2025, time.June, 15, 18, 45, 0, 0, time.UTC).UnixMilli())
	got, err := NormalizeDate(ms)
	if err != nil {
		t.Fatalf("NormalizeDate: %v", err)
	}
	if want := date(2025, time.June, 15); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeDate_Native(t *testing.T) {
	in := time.Date(2025, time.March, 3, 11, 30, 0, 0, time.UTC)
	got, err := NormalizeDate(in)
	if err != nil {
		t.Fatalf("NormalizeDate: %v", err)
	}
	if want := date(2025, time.March, 3); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNormalizeDate_Invalid(t *testing.T) {
	for _, in := range []any{"", "not-a-date", "30/02/2025", "2025/10/23", true, nil, time.Time{}} {
		if _, err := NormalizeDate(in); err == nil {
			t.Fatalf("NormalizeDate(%v): expected error", in)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"09:30", "09:30"},
		{"9:30", "09:30"},
		{"00:00", "00:00"},
		{"23:59", "23:59"},
		{"930", "09:30"},
		{"1430", "14:30"},
		{float64(930), "09:30"},
		{float64(1430), "14:30"},
	}
	for _, tc := range cases {
		got, err := NormalizeTime(tc.in)
		if err != nil {
			t.Fatalf("NormalizeTime(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeTime_RoundTripsNumericInputs(t *testing.T) {
	// Positional interpretation must match plain division/modulo.
	for n := 0; n <= 2359; n++ {
		hour := n / 100
		minute := n % 100
		if n < 100 {
			continue // not a 3-4 digit numeral
		}
		got, err := NormalizeTime(float64(n))
		if hour > 23 || minute > 59 {
			if err == nil {
				t.Fatalf("NormalizeTime(%d): expected error, got %q", n, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeTime(%d): %v", n, err)
		}
		want := clockString(hour, minute)
		if got != want {
			t.Fatalf("NormalizeTime(%d) = %q, want %q", n, got, want)
		}
	}
}

func clockString(h, m int) string {
	s, _ := clock(h, m)
	return s
}

func TestNormalizeTime_Invalid(t *testing.T) {
	for _, in := range []any{"24:00", "12:60", "2460", "12", "12345", "9.30", "", nil, true} {
		if _, err := NormalizeTime(in); err == nil {
			t.Fatalf("NormalizeTime(%v): expected error", in)
		}
	}
}

func TestIsValidFutureDate(t *testing.T) {
	now := time.Date(2025, time.October, 23, 15, 0, 0, 0, time.UTC)
	today := date(2025, time.October, 23)
	yesterday := date(2025, time.October, 22)
	tomorrow := date(2025, time.October, 24)

	if !IsValidFutureDate(today, now, true) {
		t.Fatal("today should be valid when allowToday is true")
	}
	if IsValidFutureDate(today, now, false) {
		t.Fatal("today should be invalid when allowToday is false")
	}
	if IsValidFutureDate(yesterday, now, true) {
		t.Fatal("yesterday should never be valid")
	}
	if !IsValidFutureDate(tomorrow, now, false) {
		t.Fatal("tomorrow should always be valid")
	}
}

func TestCombineOrdersInstants(t *testing.T) {
	day := date(2025, time.October, 23)
	earlier := Combine(day, "09:30")
	later := Combine(day, "14:05")
	if !earlier.Before(later) {
		t.Fatal("09:30 should sort before 14:05 on the same day")
	}
	if want := day.Add(9*time.Hour + 30*time.Minute); !earlier.Equal(want) {
		t.Fatalf("Combine = %s, want %s", earlier, want)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(date(2025, time.March, 7)); got != "2025-03-07" {
		t.Fatalf("FormatDate = %q", got)
	}
}
