package compliance

import (
	"fmt"
	"time"
)

const (
	// Excavators must give utility operators two full business days of
	// notice before breaking ground.
	waitingBusinessDays = 2
	// Facility markings stay valid for 14 calendar days once judged
	// complete; after that the ticket must be refreshed.
	markingValidityDays = 14
)

// Clock performs the compliance date arithmetic for locate tickets. It is
// pure: the same inputs always produce the same dates, and it never touches
// the database or the wall clock.
type Clock struct {
	cal Calendar
}

// NewClock builds a Clock over the given holiday calendar.
func NewClock(cal Calendar) *Clock {
	return &Clock{cal: cal}
}

// LawfulStart returns the earliest date excavation may legally begin after a
// ticket requested at requestedAt: the request day plus the mandatory waiting
// period, skipping weekends and configured holidays. The result is a UTC
// start-of-day instant.
func (c *Clock) LawfulStart(requestedAt time.Time) (time.Time, error) {
	day := startOfDay(requestedAt)
	remaining := waitingBusinessDays
	for remaining > 0 {
		day = day.AddDate(0, 0, 1)
		business, err := c.isBusinessDay(day)
		if err != nil {
			return time.Time{}, fmt.Errorf("compliance: lawful start: %w", err)
		}
		if business {
			remaining--
		}
	}
	return day, nil
}

// ExpiresAt returns the date the ticket's markings stop being valid, given
// the moment they were judged complete.
func (c *Clock) ExpiresAt(markedAt time.Time) time.Time {
	return startOfDay(markedAt).AddDate(0, 0, markingValidityDays)
}

func (c *Clock) isBusinessDay(day time.Time) (bool, error) {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}
	holidays, err := c.cal.Holidays(day.Year())
	if err != nil {
		return false, err
	}
	for _, h := range holidays {
		if sameDay(h, day) {
			return false, nil
		}
	}
	return true, nil
}
