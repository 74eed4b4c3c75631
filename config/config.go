package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"locateflow/compliance"
)

// Config is loaded from environment variables at startup.
type Config struct {
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `env:"DATABASE_URL,required"`
	// Holidays lists compliance holidays as YYYY-MM-DD dates.
	Holidays []string `env:"COMPLIANCE_HOLIDAYS" envSeparator:","`
	// HolidayYears marks years covered by the calendar even when they
	// carry no holidays of their own.
	HolidayYears []int `env:"COMPLIANCE_HOLIDAY_YEARS" envSeparator:","`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// Calendar builds the holiday calendar configured for the compliance clock.
func (c Config) Calendar() (*compliance.MapCalendar, error) {
	dates := make([]time.Time, 0, len(c.Holidays))
	for _, raw := range c.Holidays {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("config: bad holiday date %q: %w", raw, err)
		}
		dates = append(dates, day)
	}
	return compliance.NewMapCalendar(dates, c.HolidayYears...), nil
}
