package timewindow

import (
	"testing"
	"time"

	"github.com/cuemby/scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEvaluate_SameDayWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", mustUTC("2024-01-01T08:59:00Z"), false},
		{"at start", mustUTC("2024-01-01T09:00:00Z"), true},
		{"inside window", mustUTC("2024-01-01T12:00:00Z"), true},
		{"at end (exclusive)", mustUTC("2024-01-01T17:00:00Z"), false},
		{"after window", mustUTC("2024-01-01T18:00:00Z"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(Args{
				Start: "09:00:00",
				End:   "17:00:00",
				TZ:    "UTC",
				Days:  []types.Weekday{types.Monday},
				Now:   tt.now, // 2024-01-01 is a Monday
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_OvernightWindow(t *testing.T) {
	// 22:00 -> 06:00 Mon, per GLOSSARY/boundary behaviors in the spec.
	args := func(now time.Time) Args {
		return Args{
			Start: "22:00:00",
			End:   "06:00:00",
			TZ:    "UTC",
			Days:  []types.Weekday{types.Monday},
			Now:   now,
		}
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"Mon 23:00 active", mustUTC("2024-01-01T23:00:00Z"), true},
		{"Tue 05:00 active (belongs to Mon)", mustUTC("2024-01-02T05:00:00Z"), true},
		{"Tue 07:00 inactive", mustUTC("2024-01-02T07:00:00Z"), false},
		{"Sun 23:00 inactive (Sun not in days)", mustUTC("2023-12-31T23:00:00Z"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(args(tt.now))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_DayMembershipUsesWindowStartWeekday(t *testing.T) {
	// Window owned by Friday, evaluated at Saturday 01:00: now_local's
	// weekday is Saturday but start_local's weekday is Friday, and Friday
	// is in days, so the window must still read active.
	got, err := Evaluate(Args{
		Start: "22:00:00",
		End:   "06:00:00",
		TZ:    "UTC",
		Days:  []types.Weekday{types.Friday},
		Now:   mustUTC("2024-01-06T01:00:00Z"), // Saturday 01:00
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_InvalidTimezone(t *testing.T) {
	_, err := Evaluate(Args{
		Start: "09:00:00",
		End:   "17:00:00",
		TZ:    "Not/AZone",
		Days:  []types.Weekday{types.Monday},
		Now:   mustUTC("2024-01-01T12:00:00Z"),
	})
	assert.Error(t, err)
}

func TestEvaluate_Pure(t *testing.T) {
	a := Args{
		Start: "09:00:00",
		End:   "17:00:00",
		TZ:    "UTC",
		Days:  []types.Weekday{types.Monday},
		Now:   mustUTC("2024-01-01T12:00:00Z"),
	}
	got1, err1 := Evaluate(a)
	got2, err2 := Evaluate(a)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, got1, got2)
}
