package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/tazhate/billbot/config"
	"github.com/tazhate/billbot/internal/domain"
)

// Reminders is the reminder use-case surface the bot and the REST API drive.
type Reminders interface {
	Add(recipient int64, dueDay int, text string) (*domain.Reminder, error)
	List(recipient int64) ([]*domain.Reminder, error)
	Remove(id, recipient int64) (bool, error)
	NextDue(r *domain.Reminder) (time.Time, error)
	FormatList(reminders []*domain.Reminder) string
	ExportICS(recipient int64) ([]byte, error)
}

// sender is the subset of tgbotapi.BotAPI used for outgoing traffic.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api       *tgbotapi.BotAPI
	out       sender
	cfg       *config.Config
	reminders Reminders
	offsets   []int
	log       zerolog.Logger
	server    *http.Server
}

func New(cfg *config.Config, reminders Reminders, offsets []int, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(cfg, api, reminders, offsets, log)
	b.api = api
	b.log.Info().Str("username", api.Self.UserName).Msg("authorized")

	b.setCommands()
	return b, nil
}

func newBot(cfg *config.Config, out sender, reminders Reminders, offsets []int, log zerolog.Logger) *Bot {
	return &Bot{
		out:       out,
		cfg:       cfg,
		reminders: reminders,
		offsets:   offsets,
		log:       log.With().Str("component", "bot").Logger(),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "add", Description: "➕ Add a monthly reminder"},
		{Command: "list", Description: "📋 Your reminders"},
		{Command: "remove", Description: "🗑 Remove a reminder"},
		{Command: "export", Description: "📆 Export as calendar file"},
		{Command: "chatid", Description: "🆔 Show this chat id"},
		{Command: "help", Description: "❓ Help"},
	}

	if _, err := b.out.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn().Err(err).Msg("set commands")
	}
}

// Start serves HTTP and consumes updates until ctx is cancelled. Updates
// arrive on POST /bot when a webhook URL is configured, otherwise by long
// polling.
func (b *Bot) Start(ctx context.Context) error {
	b.server = &http.Server{
		Addr:              ":" + b.cfg.ServerPort,
		Handler:           b.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		b.log.Info().Str("port", b.cfg.ServerPort).Msg("http server started")
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error().Err(err).Msg("http server")
		}
	}()

	if b.cfg.WebhookURL != "" {
		if err := b.setupWebhook(); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	return b.poll(ctx)
}

func (b *Bot) setupWebhook() error {
	webhookURL := strings.TrimRight(b.cfg.WebhookURL, "/") + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		b.log.Warn().Str("last_error", info.LastErrorMessage).Msg("webhook reported an error")
	}

	b.log.Info().Str("url", webhookURL).Msg("webhook set")
	return nil
}

func (b *Bot) poll(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Msg("long polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// Send delivers a reminder notification. The Telegram client has no context
// support, so the call is abandoned when ctx ends.
func (b *Bot) Send(ctx context.Context, recipient int64, text string) error {
	msg := tgbotapi.NewMessage(recipient, html.EscapeString(text))
	msg.ParseMode = tgbotapi.ModeHTML

	done := make(chan error, 1)
	go func() {
		_, err := b.out.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send to %d: %w", recipient, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %d: %w", recipient, ctx.Err())
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.out.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply")
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.out.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply")
	}
}
