package utils

import (
	"log"
	"strings"
	"time"

	"portfolio-dashboard/src/interfaces"

	"github.com/scmhub/calendar"
)

// maxCalendarScan bounds every day-by-day walk over a calendar.
const maxCalendarScan = 3660

// TradingCalendar decides business days either from an exchange calendar
// (scmhub/calendar, holiday aware) or from a plain Mon-Fri rule.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// NewWeekdayCalendar returns a Mon-Fri calendar evaluated in loc.
func NewWeekdayCalendar(loc *time.Location) *TradingCalendar {
	if loc == nil {
		loc = time.Local
	}
	return &TradingCalendar{Fallback: true, Timezone: loc}
}

// -----------------------------------------------------------------------------

// GetCalendar resolves name to a calendar. "weekdays" (or empty) selects the
// Mon-Fri rule in loc; anything else is treated as an exchange MIC such as "xnys".
// Unknown MICs fall back to the weekday rule.
func GetCalendar(name string, loc *time.Location) *TradingCalendar {
	mic := strings.ToLower(strings.TrimSpace(name))
	if mic == "" || mic == WeekdayCalendarName {
		return NewWeekdayCalendar(loc)
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s'. Using Mon-Fri fallback.", mic)
		return NewWeekdayCalendar(loc)
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsBusinessDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback || tc.Calendar == nil {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) Location() *time.Location {
	if tc.Timezone == nil {
		return time.Local
	}
	return tc.Timezone
}

// -----------------------------------------------------------------------------

// LastBusinessDayCutoff is the instant before which a historical entry counts as
// stale: the start of today when today is a business day, otherwise the end of
// the most recent preceding business day.
func LastBusinessDayCutoff(cal interfaces.IBusinessCalendar, now time.Time) time.Time {
	loc := cal.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if cal.IsBusinessDay(today.Add(12 * time.Hour)) {
		return today
	}

	for i := 1; i <= maxCalendarScan; i++ {
		day := time.Date(today.Year(), today.Month(), today.Day()-i, 0, 0, 0, 0, loc)
		if cal.IsBusinessDay(day.Add(12 * time.Hour)) {
			next := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
			return next.Add(-time.Nanosecond)
		}
	}
	return today
}

// -----------------------------------------------------------------------------

// IsStale reports whether lastUpdated predates the last business-day cutoff.
func IsStale(cal interfaces.IBusinessCalendar, lastUpdated, now time.Time) bool {
	return lastUpdated.Before(LastBusinessDayCutoff(cal, now))
}

// -----------------------------------------------------------------------------

// MissingBusinessDays lists the business days after the calendar date of
// lastDate up to and including today, as UTC date keys.
func MissingBusinessDays(cal interfaces.IBusinessCalendar, lastDate, now time.Time) []time.Time {
	loc := cal.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	// Point dates are stored as UTC date keys.
	y, m, d := lastDate.UTC().Date()
	day := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	var missing []time.Time
	for i := 0; !day.After(today) && i < maxCalendarScan; i++ {
		if cal.IsBusinessDay(day.Add(12 * time.Hour)) {
			missing = append(missing, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC))
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return missing
}

// -----------------------------------------------------------------------------

// DateOf returns the calendar date of t in loc as a UTC midnight date key.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
