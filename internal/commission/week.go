package commission

import (
	"time"
)

const (
	weekLayout = "2006-01-02"
	weekLength = 7 * 24 * time.Hour
)

// Week is a settlement week [Start, End) in UTC. Weeks start on Monday.
type Week struct {
	Start time.Time
	End   time.Time
}

// ParseWeek validates a "YYYY-MM-DD" key and returns the week it opens.
func ParseWeek(value string) (Week, error) {
	if value == "" {
		return Week{}, &InvalidWeekError{Value: value, Reason: "missing"}
	}
	t, err := time.ParseInLocation(weekLayout, value, time.UTC)
	if err != nil {
		return Week{}, &InvalidWeekError{Value: value, Reason: "expected YYYY-MM-DD"}
	}
	if t.Weekday() != time.Monday {
		return Week{}, &InvalidWeekError{Value: value, Reason: "not a Monday"}
	}
	return WeekOf(t), nil
}

// WeekOf returns the week containing t.
func WeekOf(t time.Time) Week {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return Week{Start: start, End: start.AddDate(0, 0, 7)}
}

func (w Week) Key() string {
	return w.Start.Format(weekLayout)
}

func (w Week) Prev() Week {
	start := w.Start.AddDate(0, 0, -7)
	return Week{Start: start, End: w.Start}
}

func (w Week) Next() Week {
	return Week{Start: w.End, End: w.End.AddDate(0, 0, 7)}
}

// Contains reports whether t falls inside the week.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Week) String() string {
	return w.Key()
}
