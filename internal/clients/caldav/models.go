package caldav

import "time"

// Calendar is a collection found on the CalDAV server.
type Calendar struct {
	Path        string
	DisplayName string
	Description string
}

// Options controls how reminders are rendered as iCalendar events.
type Options struct {
	Location *time.Location
	Offsets  []int // lead days, one VALARM each
	FireHour int
	FireMin  int
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}
