package compliance

import (
	"errors"
	"fmt"
	"time"
)

// ErrCalendarUnresolved signals the holiday set for a requested year is not
// configured. This is a configuration fault: the caller must supply a calendar
// covering every year its tickets can touch.
var ErrCalendarUnresolved = errors.New("compliance: holiday calendar unresolved")

// Calendar resolves the configured holidays for a given year.
type Calendar interface {
	Holidays(year int) ([]time.Time, error)
}

// MapCalendar serves holidays from a fixed, preloaded set of dates. A year is
// covered if at least one holiday falls in it or it was listed explicitly via
// coveredYears (for years that legitimately have no configured holidays).
type MapCalendar struct {
	years map[int][]time.Time
}

// NewMapCalendar builds a calendar from explicit holiday dates.
func NewMapCalendar(dates []time.Time, coveredYears ...int) *MapCalendar {
	years := make(map[int][]time.Time, len(coveredYears)+4)
	for _, y := range coveredYears {
		years[y] = nil
	}
	for _, d := range dates {
		day := startOfDay(d)
		years[day.Year()] = append(years[day.Year()], day)
	}
	return &MapCalendar{years: years}
}

// Holidays returns the configured holidays for year, or ErrCalendarUnresolved
// if the year is outside the calendar's coverage.
func (c *MapCalendar) Holidays(year int) ([]time.Time, error) {
	days, ok := c.years[year]
	if !ok {
		return nil, fmt.Errorf("%w: year %d", ErrCalendarUnresolved, year)
	}
	return days, nil
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
