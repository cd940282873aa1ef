package shift_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clock/shift"
)

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02")
	}
	return out
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		until time.Time
		freq  shift.Frequency
		want  []string
	}{
		{"once", date(2018, 4, 1), date(2018, 5, 1), shift.Once, []string{"2018-04-01"}},
		{"weekly until inclusive", at(2018, 4, 1, 9, 0), date(2018, 5, 1), shift.Weekly,
			[]string{"2018-04-01", "2018-04-08", "2018-04-15", "2018-04-22", "2018-04-29"}},
		{"daily", at(2024, 2, 27, 9, 0), date(2024, 3, 2), shift.Daily,
			[]string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}},
		{"monthly skips short months", date(2024, 1, 31), date(2024, 6, 30), shift.Monthly,
			[]string{"2024-01-31", "2024-03-31", "2024-05-31"}},
		{"until on start day", date(2024, 1, 1), date(2024, 1, 1), shift.Daily, []string{"2024-01-01"}},
		{"until before start", date(2024, 1, 10), date(2024, 1, 1), shift.Daily, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dates(shift.Expand(tt.start, tt.until, tt.freq)))
		})
	}
}

func TestExpand_UntilTimeOfDayIgnored(t *testing.T) {
	// until at 00:01 still includes a 09:00 occurrence that day
	got := shift.Expand(at(2024, 1, 1, 9, 0), at(2024, 1, 3, 0, 1), shift.Daily)
	assert.Len(t, got, 3)
}

func TestOccurrences_KeepTimeOfDay(t *testing.T) {
	got := shift.Occurrences(iv(at(2024, 1, 1, 9, 0), at(2024, 1, 1, 17, 30)), date(2024, 1, 15), shift.Weekly)
	require.Len(t, got, 3)
	for i, o := range got {
		assert.Equal(t, 9, o.Start.Hour())
		assert.Equal(t, 17, o.Finish.Hour())
		assert.Equal(t, 30, o.Finish.Minute())
		assert.Equal(t, 1+7*i, o.Start.Day())
		assert.True(t, shift.SameDay(o.Start, o.Finish))
	}
}

func TestParseFrequency(t *testing.T) {
	for in, want := range map[string]shift.Frequency{
		"":        shift.Once,
		"once":    shift.Once,
		"DAILY":   shift.Daily,
		" weekly": shift.Weekly,
		"Monthly": shift.Monthly,
	} {
		got, err := shift.ParseFrequency(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := shift.ParseFrequency("yearly")
	assert.ErrorIs(t, err, shift.ErrInvalidRecurrence)
}

func TestExpandLimit(t *testing.T) {
	got, more := shift.ExpandLimit(date(2024, 1, 1), date(9999, 12, 31), shift.Daily, 3)
	assert.True(t, more)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, dates(got))

	got, more = shift.ExpandLimit(date(2024, 1, 1), date(2024, 1, 15), shift.Weekly, 3)
	assert.False(t, more, "exactly the limit")
	assert.Len(t, got, 3)

	got, more = shift.ExpandLimit(date(2024, 1, 1), date(9999, 12, 31), shift.Once, 3)
	assert.False(t, more)
	assert.Len(t, got, 1)
}
