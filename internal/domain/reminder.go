package domain

import (
	"fmt"
	"time"
)

const (
	MinDueDay = 1
	MaxDueDay = 31
)

// Reminder is a recurring monthly obligation owned by one chat.
type Reminder struct {
	ID        int64     `json:"id"`
	Recipient int64     `json:"chat_id"`
	DueDay    int       `json:"day"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func ValidDueDay(day int) bool {
	return day >= MinDueDay && day <= MaxDueDay
}

// OffsetLabel is the lead-time prefix of a notification.
func OffsetLabel(offset int) string {
	switch offset {
	case 0:
		return "🚨 Due now"
	case 1:
		return "⏰ 1 day left"
	default:
		return fmt.Sprintf("📅 %d days left", offset)
	}
}

// NotificationText renders the message delivered for one firing.
func NotificationText(r *Reminder, offset int) string {
	return fmt.Sprintf("%s: %s", OffsetLabel(offset), r.Text)
}
