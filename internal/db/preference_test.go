package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clockTime(t *testing.T, hhmm string) time.Time {
	t.Helper()

	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)

	return parsed
}

func TestInQuietWindow(t *testing.T) {
	testCases := []struct {
		name   string
		now    string
		start  string
		end    string
		expect bool
	}{
		{name: "inside same-day window", now: "14:00", start: "13:00", end: "15:00", expect: true},
		{name: "before same-day window", now: "12:59", start: "13:00", end: "15:00", expect: false},
		{name: "at window start", now: "13:00", start: "13:00", end: "15:00", expect: true},
		{name: "at window end", now: "15:00", start: "13:00", end: "15:00", expect: false},
		{name: "overnight window late evening", now: "23:30", start: "22:00", end: "07:00", expect: true},
		{name: "overnight window early morning", now: "06:59", start: "22:00", end: "07:00", expect: true},
		{name: "overnight window daytime", now: "12:00", start: "22:00", end: "07:00", expect: false},
		{name: "empty window", now: "12:00", start: "12:00", end: "12:00", expect: false},
		{name: "malformed start", now: "12:00", start: "25:61", end: "13:00", expect: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := inQuietWindow(clockTime(t, tc.now), tc.start, tc.end)
			require.Equal(t, tc.expect, got)
		})
	}
}
