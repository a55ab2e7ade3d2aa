package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Now returns current time (swappable in tests).
var Now = time.Now

// EndOfProgram resolves an "HH:MM" shift boundary against today. A boundary
// already in the past rolls over to the same time tomorrow so a freshly
// issued token is never born expired.
func EndOfProgram(programEnd string, now time.Time) (time.Time, error) {
	parts := strings.Split(programEnd, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed program end %q", programEnd)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("malformed program end hour %q", programEnd)
	}
	min, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || min < 0 || min > 59 {
		return time.Time{}, fmt.Errorf("malformed program end minute %q", programEnd)
	}

	end := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end, nil
}

// ParseDay parses a calendar day in the wire format used by clients.
func ParseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
