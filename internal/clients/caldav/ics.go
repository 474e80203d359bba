package caldav

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tazhate/billbot/internal/domain"
	"github.com/tazhate/billbot/internal/scheduler"
)

const productID = "-//BillBot//Reminders//EN"

// EventUID is stable per reminder so PUT overwrites and DELETE finds it.
func EventUID(id int64) string {
	return fmt.Sprintf("billbot-reminder-%d", id)
}

// NewCalendar returns an empty VCALENDAR with the required properties set.
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// ReminderEvent renders a reminder as an all-day monthly recurring event
// starting at its next due date, with one alarm per lead offset.
func ReminderEvent(r *domain.Reminder, opts Options, now time.Time) (*ical.Event, error) {
	start, err := scheduler.NextDue(r.DueDay, now.In(opts.location()))
	if err != nil {
		return nil, err
	}

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, EventUID(r.ID))
	ev.Props.SetText(ical.PropSummary, r.Text)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetDate(ical.PropDateTimeStart, start)
	ev.Props.SetDate(ical.PropDateTimeEnd, start.AddDate(0, 0, 1))

	rrule := ical.NewProp(ical.PropRecurrenceRule)
	rrule.Value = fmt.Sprintf("FREQ=MONTHLY;BYMONTHDAY=%d", r.DueDay)
	ev.Props.Set(rrule)

	for _, offset := range opts.Offsets {
		ev.Children = append(ev.Children, alarm(r, offset, opts))
	}
	return ev, nil
}

func alarm(r *domain.Reminder, offset int, opts Options) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	a.Props.SetText(ical.PropAction, "DISPLAY")
	a.Props.SetText(ical.PropDescription, domain.NotificationText(r, offset))

	// Relative to the start of the due day.
	lead := time.Duration(opts.FireHour)*time.Hour + time.Duration(opts.FireMin)*time.Minute -
		time.Duration(offset)*24*time.Hour
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = formatDuration(lead)
	a.Props.Set(trigger)
	return a
}

// BuildCalendar renders every reminder into one calendar. Reminders that
// cannot be rendered are skipped.
func BuildCalendar(reminders []*domain.Reminder, opts Options, now time.Time) *ical.Calendar {
	cal := NewCalendar()
	for _, r := range reminders {
		ev, err := ReminderEvent(r, opts, now)
		if err != nil {
			continue
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// Encode serializes a calendar to .ics bytes.
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// formatDuration renders d as an RFC 5545 duration, e.g. -P1DT16H.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
	}
	return b.String()
}
