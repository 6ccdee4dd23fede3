package clock

import "time"

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// ReportDate formats today's date in the publication timezone.
// Params: clock, timezone (nil means UTC), and Go layout such as 02/01/2006.
// Returns: report date text used in mail subjects.
func ReportDate(c Clock, loc *time.Location, layout string) string {
	if loc == nil {
		loc = time.UTC
	}
	return c.Now().In(loc).Format(layout)
}
