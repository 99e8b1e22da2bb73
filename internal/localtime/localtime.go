// Package localtime interprets the portal's local date and clock strings as
// instants in a fixed reference timezone.
package localtime

import (
	"fmt"
	"time"
)

// DefaultLocation is the timezone all portal times are quoted in.
const DefaultLocation = "Europe/Berlin"

const (
	dateLayout  = "02.01.2006"
	clockLayout = "15:04"
)

// ParseError reports a date or clock string that does not match the portal's
// format.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Localizer converts DD.MM.YYYY dates and HH:MM clock times into instants
// anchored to its location.
type Localizer struct {
	loc *time.Location
}

// New loads the named timezone. Empty name falls back to DefaultLocation.
func New(name string) (*Localizer, error) {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", name, err)
	}
	return &Localizer{loc: loc}, nil
}

// Location returns the reference timezone.
func (l *Localizer) Location() *time.Location { return l.loc }

// Instant combines a date and clock string into a timezone-aware instant.
func (l *Localizer) Instant(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, l.loc)
	if err != nil {
		return time.Time{}, &ParseError{Field: "date", Value: date, Err: err}
	}
	tod, err := time.ParseInLocation(clockLayout, clock, l.loc)
	if err != nil {
		return time.Time{}, &ParseError{Field: "time", Value: clock, Err: err}
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), 0, 0, l.loc), nil
}

// Now returns the current time in the reference timezone.
func (l *Localizer) Now() time.Time { return time.Now().In(l.loc) }
