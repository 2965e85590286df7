package streak

import (
	"time"
)

// =============================================================================
// DAY - Canonical calendar day (UTC)
// =============================================================================

// Day is a calendar day normalized to UTC midnight. Every date entering
// the engine is converted through DayOf at the boundary; comparisons
// never touch the ambient local zone, which is a correctness hazard for
// streak logic (a purchase at 23:30 local must not land on the wrong
// day depending on server configuration).
type Day struct {
	t time.Time
}

// NewDay constructs a day from calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates an arbitrary timestamp to its UTC calendar day.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return NewDay(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC calendar day.
func Today() Day {
	return DayOf(time.Now())
}

// ParseDay parses an ISO date (YYYY-MM-DD).
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }
func (d Day) After(other Day) bool  { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool  { return d.t.Equal(other.t) }
func (d Day) IsZero() bool          { return d.t.IsZero() }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Start returns the day's UTC midnight instant.
func (d Day) Start() time.Time { return d.t }

func (d Day) String() string { return d.t.Format("2006-01-02") }

// MarshalText / UnmarshalText make Day round-trip as an ISO date in
// JSON bodies and store columns. A zero Day serializes as empty.
func (d Day) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte(""), nil
	}
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CALENDAR COMPARATOR
// =============================================================================

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b Day) bool {
	return a.Equal(b)
}

// NextDay reports whether a and b are exactly one calendar day apart,
// in either direction. The engine only ever calls it with b later than
// a, but the predicate is order-agnostic to avoid sign bugs.
func NextDay(a, b Day) bool {
	diff := DaysBetween(a, b)
	return diff == 1 || diff == -1
}

// DaysBetween returns the signed calendar-day difference b - a.
// AddDate handles DST-free UTC days, so hour division is exact.
func DaysBetween(a, b Day) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}
