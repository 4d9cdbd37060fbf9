package interfaces

import "time"

// -----------------------------------------------------------------------------
// IBusinessCalendar decides which calendar days count as business days.
// -----------------------------------------------------------------------------

type IBusinessCalendar interface {
	IsBusinessDay(date time.Time) bool
	Location() *time.Location
}
