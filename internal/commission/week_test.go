package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeek(t *testing.T) {
	t.Run("Monday key", func(t *testing.T) {
		w, err := ParseWeek("2024-01-08")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), w.End)
		assert.Equal(t, "2024-01-08", w.Key())
	})

	tests := []struct {
		name   string
		value  string
		reason string
	}{
		{"empty", "", "missing"},
		{"not a date", "next-monday", "expected YYYY-MM-DD"},
		{"timestamp", "2024-01-08T00:00:00Z", "expected YYYY-MM-DD"},
		{"tuesday", "2024-01-09", "not a Monday"},
		{"sunday", "2024-01-07", "not a Monday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWeek(tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidWeek))

			var iwe *InvalidWeekError
			require.True(t, errors.As(err, &iwe))
			assert.Equal(t, tt.reason, iwe.Reason)
			assert.Equal(t, tt.value, iwe.Value)
		})
	}
}

func TestWeekOf(t *testing.T) {
	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, WeekOf(monday).Start)
	assert.Equal(t, monday, WeekOf(time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)).Start)
	assert.Equal(t, monday.AddDate(0, 0, 7), WeekOf(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)).Start)

	// Sunday evening in New York is already Monday in UTC.
	ny := time.FixedZone("EST", -5*3600)
	assert.Equal(t, monday, WeekOf(time.Date(2024, 1, 7, 20, 0, 0, 0, ny)).Start)
}

func TestWeekNavigation(t *testing.T) {
	w := mustWeek(t, "2024-01-08")

	assert.Equal(t, "2024-01-01", w.Prev().Key())
	assert.Equal(t, "2024-01-15", w.Next().Key())
	assert.Equal(t, w.Start, w.Prev().End)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}
