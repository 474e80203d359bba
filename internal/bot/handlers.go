package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/billbot/internal/metrics"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	// /chatid stays open so a new chat can be added to the allow-list.
	if msg.IsCommand() && msg.Command() == "chatid" {
		b.handleCommand(msg)
		return
	}

	if !b.cfg.IsAllowedChat(chatID) {
		b.log.Warn().Int64("chat_id", chatID).Msg("chat not allowed")
		b.reply(chatID, "⛔ Access denied")
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	b.reply(chatID, "Send /add &lt;day&gt; &lt;text&gt; to create a reminder, or /help")
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	if !b.cfg.IsAllowedChat(chatID) {
		b.answer(cb.ID, "⛔ Access denied")
		return
	}

	action, arg, _ := strings.Cut(cb.Data, ":")
	switch action {
	case callbackRemove:
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			b.answer(cb.ID, "Invalid reminder")
			return
		}
		metrics.Commands.WithLabelValues("telegram", "remove_button").Inc()

		removed, err := b.reminders.Remove(id, chatID)
		if err != nil {
			b.log.Error().Err(err).Int64("id", id).Msg("remove from keyboard")
			b.answer(cb.ID, userMessage(err))
			return
		}
		if !removed {
			b.answer(cb.ID, "Already removed")
		} else {
			b.answer(cb.ID, fmt.Sprintf("🗑 #%d removed", id))
		}
		b.refreshList(chatID, msgID)
	default:
		b.answer(cb.ID, "")
	}
}

// refreshList redraws a /list message in place after a removal.
func (b *Bot) refreshList(chatID int64, msgID int) {
	list, err := b.reminders.List(chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("refresh list")
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, msgID, html.EscapeString(b.reminders.FormatList(list)))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = reminderListKeyboard(list)
	if _, err := b.out.Send(edit); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("edit list")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.out.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug().Err(err).Msg("answer callback")
	}
}
