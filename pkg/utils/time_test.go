package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndOfProgram(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	end, err := EndOfProgram("18:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC), end)

	// boundary already behind us rolls to tomorrow
	end, err = EndOfProgram("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), end)

	// exactly now also rolls; a token must never be born expired
	end, err = EndOfProgram("10:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), end)
}

func TestEndOfProgramMalformed(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "18", "18:xx", "25:00", "18:60", "half past six"} {
		_, err := EndOfProgram(in, now)
		assert.Error(t, err, in)
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 2026, day.Year())
	assert.Equal(t, time.August, day.Month())
	assert.Equal(t, 28, day.Day())

	_, err = ParseDay("28/08/2026")
	assert.Error(t, err)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 8, 28, 0, 1, 0, 0, time.UTC)
	b := time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)
	c := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewConnectionID()
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.NotEqual(t, NewWatchLegID(), NewWatchLegID())
}
