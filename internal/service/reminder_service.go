package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/billbot/internal/clients/caldav"
	"github.com/tazhate/billbot/internal/domain"
	"github.com/tazhate/billbot/internal/metrics"
	"github.com/tazhate/billbot/internal/scheduler"
)

// MaxTextLength bounds reminder text so a notification fits one message.
const MaxTextLength = 500

const mirrorTimeout = 30 * time.Second

// ReminderStore is the persistence contract shared by the JSON and SQLite stores.
type ReminderStore interface {
	Add(recipient int64, dueDay int, text string) (*domain.Reminder, error)
	List(recipient int64) ([]*domain.Reminder, error)
	Remove(id, recipient int64) (bool, error)
	LoadAll() ([]*domain.Reminder, error)
}

// Forgetter drops fire records of a removed reminder.
type Forgetter interface {
	Forget(reminderID int64) error
}

// Mirror publishes reminders to an external calendar. Failures are logged only.
type Mirror interface {
	Publish(ctx context.Context, r *domain.Reminder) error
	Unpublish(ctx context.Context, r *domain.Reminder) error
}

type ReminderService struct {
	store     ReminderStore
	forgetter Forgetter
	mirror    Mirror
	calendar  caldav.Options
	log       zerolog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewReminderService(store ReminderStore, forgetter Forgetter, calendar caldav.Options, log zerolog.Logger) *ReminderService {
	if calendar.Location == nil {
		calendar.Location = time.UTC
	}
	return &ReminderService{
		store:     store,
		forgetter: forgetter,
		calendar:  calendar,
		log:       log.With().Str("component", "reminders").Logger(),
		now:       time.Now,
	}
}

// SetMirror enables calendar mirroring of adds and removes.
func (s *ReminderService) SetMirror(m Mirror) {
	s.mirror = m
}

func (s *ReminderService) Add(recipient int64, dueDay int, text string) (*domain.Reminder, error) {
	text = strings.TrimSpace(text)
	if !domain.ValidDueDay(dueDay) {
		return nil, fmt.Errorf("%w: day must be between %d and %d", domain.ErrInvalidInput, domain.MinDueDay, domain.MaxDueDay)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: reminder text cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(text)) > MaxTextLength {
		return nil, fmt.Errorf("%w: reminder text is longer than %d characters", domain.ErrInvalidInput, MaxTextLength)
	}

	r, err := s.store.Add(recipient, dueDay, text)
	if err != nil {
		s.countStorageError("add", err)
		return nil, err
	}

	s.log.Info().Int64("id", r.ID).Int64("chat_id", recipient).Int("day", dueDay).Msg("reminder added")
	s.mirrorAsync("publish", r)
	return r, nil
}

func (s *ReminderService) List(recipient int64) ([]*domain.Reminder, error) {
	list, err := s.store.List(recipient)
	if err != nil {
		s.countStorageError("list", err)
		return nil, err
	}
	return list, nil
}

// Remove deletes a reminder owned by recipient. A false result means no such
// reminder belongs to recipient.
func (s *ReminderService) Remove(id, recipient int64) (bool, error) {
	removed, err := s.store.Remove(id, recipient)
	if err != nil {
		s.countStorageError("remove", err)
		return false, err
	}
	if !removed {
		return false, nil
	}

	if s.forgetter != nil {
		if err := s.forgetter.Forget(id); err != nil {
			s.log.Warn().Err(err).Int64("id", id).Msg("forget fire records")
		}
	}

	s.log.Info().Int64("id", id).Int64("chat_id", recipient).Msg("reminder removed")
	s.mirrorAsync("unpublish", &domain.Reminder{ID: id, Recipient: recipient})
	return true, nil
}

// NextDue returns the next due date of r on or after today.
func (s *ReminderService) NextDue(r *domain.Reminder) (time.Time, error) {
	return scheduler.NextDue(r.DueDay, s.now().In(s.calendar.Location))
}

// FormatList renders reminders for a chat message.
func (s *ReminderService) FormatList(reminders []*domain.Reminder) string {
	if len(reminders) == 0 {
		return "No reminders yet. Add one with /add <day> <text>"
	}

	var sb strings.Builder
	sb.WriteString("📋 Your reminders:\n")
	for _, r := range reminders {
		fmt.Fprintf(&sb, "\n#%d · day %d · %s", r.ID, r.DueDay, r.Text)
		if next, err := s.NextDue(r); err == nil {
			fmt.Fprintf(&sb, "\n    next: %s", next.Format("Mon, 02 Jan 2006"))
		}
	}
	return sb.String()
}

// ExportICS renders the recipient's reminders as an iCalendar file.
func (s *ReminderService) ExportICS(recipient int64) ([]byte, error) {
	list, err := s.List(recipient)
	if err != nil {
		return nil, err
	}
	return caldav.Encode(caldav.BuildCalendar(list, s.calendar, s.now()))
}

// Wait blocks until pending mirror calls finish.
func (s *ReminderService) Wait() {
	s.wg.Wait()
}

func (s *ReminderService) mirrorAsync(op string, r *domain.Reminder) {
	if s.mirror == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		var err error
		if op == "publish" {
			err = s.mirror.Publish(ctx, r)
		} else {
			err = s.mirror.Unpublish(ctx, r)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("op", op).Int64("id", r.ID).Msg("calendar mirror")
			return
		}
		s.log.Debug().Str("op", op).Int64("id", r.ID).Msg("calendar mirror")
	}()
}

func (s *ReminderService) countStorageError(op string, err error) {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		metrics.StorageErrors.WithLabelValues(op).Inc()
	}
}
