package config

import (
	"errors"
	"testing"
	"time"

	"locateflow/compliance"
)

func TestCalendar(t *testing.T) {
	cfg := Config{
		Holidays:     []string{"2026-07-03", "2026-12-25"},
		HolidayYears: []int{2027},
	}

	cal, err := cfg.Calendar()
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	days, err := cal.Holidays(2026)
	if err != nil {
		t.Fatalf("holidays 2026: %v", err)
	}
	if len(days) != 2 {
		t.Errorf("holidays 2026 = %d, want 2", len(days))
	}
	if !days[0].Equal(time.Date(2026, time.July, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first holiday = %v", days[0])
	}

	if _, err := cal.Holidays(2027); err != nil {
		t.Errorf("2027 listed as covered, got %v", err)
	}
	if _, err := cal.Holidays(2028); !errors.Is(err, compliance.ErrCalendarUnresolved) {
		t.Errorf("2028 should be unresolved, got %v", err)
	}
}

func TestCalendar_BadDate(t *testing.T) {
	cfg := Config{Holidays: []string{"July 4"}}
	if _, err := cfg.Calendar(); err == nil {
		t.Fatal("expected parse error for malformed holiday")
	}
}
