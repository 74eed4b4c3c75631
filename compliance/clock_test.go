package compliance

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLawfulStart_PlainWeekdays(t *testing.T) {
	clock := NewClock(NewMapCalendar(nil, 2026))

	// Monday request: Tuesday and Wednesday are the waiting days.
	got, err := clock.LawfulStart(time.Date(2026, time.March, 2, 14, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("lawful start: %v", err)
	}
	if want := date(2026, time.March, 4); !got.Equal(want) {
		t.Errorf("lawful start = %v, want %v", got, want)
	}
}

func TestLawfulStart_SkipsWeekend(t *testing.T) {
	clock := NewClock(NewMapCalendar(nil, 2026))

	// Friday March 6 2026: Saturday and Sunday don't count.
	got, err := clock.LawfulStart(date(2026, time.March, 6))
	if err != nil {
		t.Fatalf("lawful start: %v", err)
	}
	if want := date(2026, time.March, 10); !got.Equal(want) {
		t.Errorf("lawful start = %v, want %v", got, want)
	}
}

func TestLawfulStart_SkipsHoliday(t *testing.T) {
	// July 3 2026 is a Friday observed holiday; July 4 falls on Saturday.
	cal := NewMapCalendar([]time.Time{date(2026, time.July, 3)})
	clock := NewClock(cal)

	got, err := clock.LawfulStart(date(2026, time.July, 2)) // Thursday
	if err != nil {
		t.Fatalf("lawful start: %v", err)
	}
	// Friday is a holiday, weekend skipped, so Monday and Tuesday wait.
	if want := date(2026, time.July, 7); !got.Equal(want) {
		t.Errorf("lawful start = %v, want %v", got, want)
	}
}

func TestLawfulStart_YearBoundary(t *testing.T) {
	cal := NewMapCalendar([]time.Time{
		date(2026, time.December, 25),
		date(2027, time.January, 1),
	})
	clock := NewClock(cal)

	// Wednesday December 30 2026: Thursday counts, Friday January 1 is a
	// holiday, weekend skipped, Monday January 4 completes the wait.
	got, err := clock.LawfulStart(date(2026, time.December, 30))
	if err != nil {
		t.Fatalf("lawful start: %v", err)
	}
	if want := date(2027, time.January, 4); !got.Equal(want) {
		t.Errorf("lawful start = %v, want %v", got, want)
	}
}

func TestLawfulStart_UnresolvedYear(t *testing.T) {
	// Calendar only covers 2026; a request whose wait crosses into 2027
	// must fail rather than silently treat the year as holiday-free.
	clock := NewClock(NewMapCalendar(nil, 2026))

	_, err := clock.LawfulStart(date(2026, time.December, 31))
	if !errors.Is(err, ErrCalendarUnresolved) {
		t.Fatalf("expected ErrCalendarUnresolved, got %v", err)
	}
}

func TestExpiresAt(t *testing.T) {
	clock := NewClock(NewMapCalendar(nil))

	got := clock.ExpiresAt(time.Date(2026, time.March, 2, 17, 45, 0, 0, time.UTC))
	if want := date(2026, time.March, 16); !got.Equal(want) {
		t.Errorf("expires at = %v, want %v", got, want)
	}
}

func TestMapCalendar_CoveredYearWithoutHolidays(t *testing.T) {
	cal := NewMapCalendar(nil, 2026)

	days, err := cal.Holidays(2026)
	if err != nil {
		t.Fatalf("holidays: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("expected no holidays, got %d", len(days))
	}

	if _, err := cal.Holidays(2027); !errors.Is(err, ErrCalendarUnresolved) {
		t.Errorf("expected ErrCalendarUnresolved for uncovered year, got %v", err)
	}
}
