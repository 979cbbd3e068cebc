// Package availability decides whether a wall-clock time falls inside a
// doctor's working-hours window and generates free slot candidates.
package availability

import (
	"fmt"
	"strconv"
	"strings"
)

// WithinWindow reports whether t lies inside [start, end]. All three values
// must be canonical zero-padded "HH:MM", which makes lexicographic order
// equivalent to chronological order within a single day. Windows crossing
// midnight are not supported.
func WithinWindow(start, end, t string) bool {
	return start <= t && t <= end
}

// SlotTimes returns the "HH:MM" start times inside [start, end] where an
// appointment of durationMinutes would still end by the window close, stepping
// by durationMinutes. Times present in busy are skipped, as is anything
// before notBefore (pass "" when the whole day is bookable).
func SlotTimes(start, end string, durationMinutes int, busy map[string]struct{}, notBefore string) []string {
	if durationMinutes <= 0 {
		return nil
	}
	startMin, ok := toMinutes(start)
	if !ok {
		return nil
	}
	endMin, ok := toMinutes(end)
	if !ok || endMin <= startMin {
		return nil
	}

	var slots []string
	for m := startMin; m+durationMinutes <= endMin; m += durationMinutes {
		hhmm := toClock(m)
		if notBefore != "" && hhmm < notBefore {
			continue
		}
		if _, taken := busy[hhmm]; taken {
			continue
		}
		slots = append(slots, hhmm)
	}
	return slots
}

func toMinutes(hhmm string) (int, bool) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func toClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
