package quote

import (
	"fmt"
	"time"
	_ "time/tzdata" // exchange timezones must resolve on minimal hosts

	"stock-sim-go/internal/config"
)

const dateLayout = "2006-01-02"

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses "15:04".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func clockOf(t time.Time) Clock { return Clock(t.Hour()*60 + t.Minute()) }

// Calendar is an exchange trading calendar.
type Calendar struct {
	Location    *time.Location
	Open        Clock
	Close       Clock
	EarlyClose  Clock
	Holidays    map[string]struct{}
	EarlyCloses map[string]struct{}
}

// NewCalendar builds a calendar from the market configuration.
func NewCalendar(cfg config.Market) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", cfg.Timezone, err)
	}
	cal := &Calendar{
		Location:    loc,
		Holidays:    make(map[string]struct{}, len(cfg.Holidays)),
		EarlyCloses: make(map[string]struct{}, len(cfg.EarlyCloses)),
	}
	if cal.Open, err = ParseClock(cfg.Open); err != nil {
		return nil, err
	}
	if cal.Close, err = ParseClock(cfg.Close); err != nil {
		return nil, err
	}
	if cal.EarlyClose, err = ParseClock(cfg.EarlyClose); err != nil {
		return nil, err
	}
	for _, d := range cfg.Holidays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", d, err)
		}
		cal.Holidays[d] = struct{}{}
	}
	for _, d := range cfg.EarlyCloses {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid early close %q: %w", d, err)
		}
		cal.EarlyCloses[d] = struct{}{}
	}
	return cal, nil
}

// IsOpen reports whether the exchange is trading at now.
func (c *Calendar) IsOpen(now time.Time) bool {
	local := now.In(c.Location)
	day := local.Format(dateLayout)

	if _, ok := c.Holidays[day]; ok {
		return false
	}
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	closeAt := c.Close
	if _, ok := c.EarlyCloses[day]; ok {
		closeAt = c.EarlyClose
	}
	t := clockOf(local)
	return t >= c.Open && t < closeAt
}
