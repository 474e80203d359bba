package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_AddMonths(t *testing.T) {
	p := Period{Year: 2026, Month: time.January}

	assert.Equal(t, Period{Year: 2025, Month: time.November}, p.AddMonths(-2))
	assert.Equal(t, Period{Year: 2027, Month: time.January}, p.AddMonths(12))
	assert.True(t, p.AddMonths(-1).Before(p))
	assert.False(t, p.Before(p))
}

func TestPeriod_RoundTrip(t *testing.T) {
	p := PeriodOf(time.Date(2026, time.March, 31, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-03", p.String())

	parsed, err := ParsePeriod("2026-03")
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	_, err = ParsePeriod("March")
	assert.Error(t, err)
}

func TestNotificationText(t *testing.T) {
	r := &Reminder{ID: 1, Recipient: 42, DueDay: 15, Text: "electricity"}

	assert.Equal(t, "🚨 Due now: electricity", NotificationText(r, 0))
	assert.Equal(t, "⏰ 1 day left: electricity", NotificationText(r, 1))
	assert.Equal(t, "📅 2 days left: electricity", NotificationText(r, 2))
}

func TestFireKey_String(t *testing.T) {
	k := FireKey{ReminderID: 7, Offset: 2, Period: Period{Year: 2026, Month: time.February}}
	assert.Equal(t, "7_2_2026-02", k.String())
}
