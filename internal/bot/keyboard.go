package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/billbot/internal/domain"
)

const callbackRemove = "rm"

// reminderListKeyboard has one remove button per reminder, two per row.
func reminderListKeyboard(reminders []*domain.Reminder) *tgbotapi.InlineKeyboardMarkup {
	if len(reminders) == 0 {
		return nil
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, r := range reminders {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("🗑 #%d %s", r.ID, truncate(r.Text, 20)),
			fmt.Sprintf("%s:%d", callbackRemove, r.ID),
		))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
