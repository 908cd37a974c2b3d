package config

import (
	"fmt"
	"strings"
	"time"
)

// DaysAhead is how far ahead the portal opens bookings
const DaysAhead = 6

// dateLayouts lists the accepted forms of the configured date, D/MM/YYYY first
var dateLayouts = []string{"2/01/2006", "2/1/2006"}

// ParseDate parses a configured D/MM/YYYY date at midnight in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want D/MM/YYYY)", s)
}

// TargetDate returns the date a run books for: the configured date, or now plus
// DaysAhead days. Callers compute it once per run and hold it across retries.
func (c *Config) TargetDate(now time.Time) (time.Time, error) {
	if c.Date != "" {
		return ParseDate(c.Date, now.Location())
	}
	y, m, d := now.AddDate(0, 0, DaysAhead).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
}
