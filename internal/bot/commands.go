package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/billbot/internal/domain"
	"github.com/tazhate/billbot/internal/metrics"
)

const (
	addUsage    = "Usage: /add <day> <text>\nExample: /add 15 Electricity bill"
	removeUsage = "Usage: /remove <id>\nSee ids with /list"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(chatID)
	case "help":
		b.cmdHelp(chatID)
	case "chatid":
		b.cmdChatID(chatID)
	case "add":
		b.cmdAdd(chatID, args)
	case "list":
		b.cmdList(chatID)
	case "remove", "rm", "delete":
		b.cmdRemove(chatID, args)
	case "export":
		b.cmdExport(chatID)
	default:
		b.reply(chatID, "Unknown command. /help lists what I can do")
		return
	}
	metrics.Commands.WithLabelValues("telegram", cmd).Inc()
}

func (b *Bot) cmdStart(chatID int64) {
	b.reply(chatID, "👋 Hi! I remind you about monthly bills before they are due.\n\n"+b.helpText())
}

func (b *Bot) cmdHelp(chatID int64) {
	b.reply(chatID, b.helpText())
}

func (b *Bot) helpText() string {
	var sb strings.Builder
	sb.WriteString("<b>Commands</b>\n")
	sb.WriteString("/add &lt;day&gt; &lt;text&gt; - remind every month on that day (1-31)\n")
	sb.WriteString("/list - your reminders\n")
	sb.WriteString("/remove &lt;id&gt; - delete a reminder\n")
	sb.WriteString("/export - download reminders as a calendar file\n")
	sb.WriteString("/chatid - show this chat id\n")

	if len(b.offsets) > 0 {
		leads := make([]string, 0, len(b.offsets))
		for _, o := range b.offsets {
			leads = append(leads, html.EscapeString(domain.OffsetLabel(o)))
		}
		fmt.Fprintf(&sb, "\nYou get: %s.\nMonths without the day are skipped.", strings.Join(leads, ", "))
	}
	return sb.String()
}

func (b *Bot) cmdChatID(chatID int64) {
	b.reply(chatID, fmt.Sprintf("🆔 Chat id: <code>%d</code>", chatID))
}

func (b *Bot) cmdAdd(chatID int64, args string) {
	day, text, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, "❌ "+html.EscapeString(userMessage(err))+"\n\n"+html.EscapeString(addUsage))
		return
	}

	r, err := b.reminders.Add(chatID, day, text)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	out := fmt.Sprintf("✅ Reminder #%d added: <b>%s</b> on day %d", r.ID, html.EscapeString(r.Text), r.DueDay)
	if next, err := b.reminders.NextDue(r); err == nil {
		out += "\nNext due: " + next.Format("Mon, 02 Jan 2006")
	}
	b.reply(chatID, out)
}

func (b *Bot) cmdList(chatID int64) {
	list, err := b.reminders.List(chatID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.replyWithKeyboard(chatID, html.EscapeString(b.reminders.FormatList(list)), reminderListKeyboard(list))
}

func (b *Bot) cmdRemove(chatID int64, args string) {
	id, err := ParseRemoveArgs(args)
	if err != nil {
		b.reply(chatID, "❌ "+html.EscapeString(userMessage(err))+"\n\n"+html.EscapeString(removeUsage))
		return
	}

	removed, err := b.reminders.Remove(id, chatID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("❌ Reminder #%d not found", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("🗑 Reminder #%d removed", id))
}

func (b *Bot) cmdExport(chatID int64) {
	list, err := b.reminders.List(chatID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "Nothing to export yet. Add a reminder with /add")
		return
	}

	data, err := b.reminders.ExportICS(chatID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "bills.ics", Bytes: data})
	doc.Caption = fmt.Sprintf("📆 %d reminder(s). Import into any calendar app.", len(list))
	if _, err := b.out.Send(doc); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send export")
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	if !errors.Is(err, domain.ErrInvalidInput) {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("command failed")
	}
	b.reply(chatID, "❌ "+html.EscapeString(userMessage(err)))
}

// userMessage strips the sentinel prefix from validation errors.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		msg := strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
		if msg == "" {
			return "Invalid input"
		}
		return strings.ToUpper(msg[:1]) + msg[1:]
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "Storage is unavailable, please try again later"
	default:
		return "Something went wrong, please try again later"
	}
}

// ParseAddArgs parses "<day> <text>".
func ParseAddArgs(args string) (int, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("%w: day and text are required", domain.ErrInvalidInput)
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("%w: day must be a number, got %q", domain.ErrInvalidInput, fields[0])
	}
	if !domain.ValidDueDay(day) {
		return 0, "", fmt.Errorf("%w: day must be between %d and %d", domain.ErrInvalidInput, domain.MinDueDay, domain.MaxDueDay)
	}

	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), fields[0]))
	if text == "" {
		return 0, "", fmt.Errorf("%w: reminder text is required", domain.ErrInvalidInput)
	}
	return day, text, nil
}

// ParseRemoveArgs parses "<id>" with an optional leading '#'.
func ParseRemoveArgs(args string) (int64, error) {
	arg := strings.TrimPrefix(strings.TrimSpace(args), "#")
	if arg == "" {
		return 0, fmt.Errorf("%w: reminder id is required", domain.ErrInvalidInput)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: reminder id must be a positive number", domain.ErrInvalidInput)
	}
	return id, nil
}
