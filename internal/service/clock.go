package service

import (
	"fmt"
	"time"
)

// Clock yields the current instant in the operating timezone of the audit calendar.
type Clock struct {
	Location *time.Location
	NowFunc  func() time.Time
}

// NewClock loads the named IANA timezone, falling back to UTC when empty.
func NewClock(timezone string) (Clock, error) {
	if timezone == "" {
		return Clock{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Clock{}, fmt.Errorf("load audit timezone %q: %w", timezone, err)
	}
	return Clock{Location: loc}, nil
}

// Now returns the current time in the clock location.
func (c Clock) Now() time.Time {
	now := time.Now
	if c.NowFunc != nil {
		now = c.NowFunc
	}
	return now().In(c.location())
}

// Today returns midnight of the current day in the clock location.
func (c Clock) Today() time.Time {
	return startOfDay(c.Now())
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
