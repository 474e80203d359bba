package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/billbot/internal/domain"
	"github.com/tazhate/billbot/internal/metrics"
)

// ReminderSource provides the active reminder set.
type ReminderSource interface {
	LoadAll() ([]*domain.Reminder, error)
}

// Notifier delivers a text message to a recipient.
type Notifier interface {
	Send(ctx context.Context, recipient int64, text string) error
}

// Evaluator evaluates every reminder against the calendar day of now.
// The cron driver and the check command depend only on this.
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) Report
}

type Options struct {
	Offsets       []int
	Location      *time.Location
	FireHour      int
	FireMin       int
	NotifyTimeout time.Duration
	// RetentionMonths is how many months of fire records Compact keeps
	// before the current one.
	RetentionMonths int
}

// Report summarizes one evaluation.
type Report struct {
	Date      time.Time
	Early     bool // before the daily fire time, nothing evaluated
	Reminders int
	Due       int
	Fired     int
	Skipped   int // already delivered this period
	Failed    int // delivery failures
	Errors    int // tracker or store errors
}

func (r Report) fields(e *zerolog.Event) *zerolog.Event {
	return e.Str("date", r.Date.Format("2006-01-02")).
		Int("reminders", r.Reminders).
		Int("due", r.Due).
		Int("fired", r.Fired).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Int("errors", r.Errors)
}

// Engine is the tick-driven scheduling engine: every evaluation consults the
// resolver for every reminder and offset, gates on the FireTracker, delivers
// and records success.
type Engine struct {
	source   ReminderSource
	tracker  FireTracker
	notifier Notifier
	opts     Options
	log      zerolog.Logger

	// Evaluations are serialized so that check-send-mark is atomic with
	// respect to other evaluations.
	mu sync.Mutex
}

func NewEngine(source ReminderSource, tracker FireTracker, notifier Notifier, opts Options, log zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if len(opts.Offsets) == 0 {
		opts.Offsets = []int{2, 1, 0}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.RetentionMonths < 1 {
		opts.RetentionMonths = 2
	}
	return &Engine{
		source:   source,
		tracker:  tracker,
		notifier: notifier,
		opts:     opts,
		log:      log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) reachedFireTime(local time.Time) bool {
	h, m, _ := local.Clock()
	return h > e.opts.FireHour || (h == e.opts.FireHour && m >= e.opts.FireMin)
}

func (e *Engine) Evaluate(ctx context.Context, now time.Time) Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	local := now.In(e.opts.Location)
	rep := Report{Date: dateOf(local)}
	if !e.reachedFireTime(local) {
		rep.Early = true
		return rep
	}

	reminders, err := e.source.LoadAll()
	if err != nil {
		metrics.StorageErrors.WithLabelValues("load").Inc()
		e.log.Error().Err(err).Msg("load reminders")
		rep.Errors++
		return rep
	}
	rep.Reminders = len(reminders)
	metrics.ActiveReminders.Set(float64(len(reminders)))

	for _, r := range reminders {
		if ctx.Err() != nil {
			break
		}
		for _, offset := range e.opts.Offsets {
			e.evaluateOne(ctx, r, offset, local, &rep)
		}
	}

	if rep.Fired > 0 || rep.Failed > 0 || rep.Errors > 0 {
		rep.fields(e.log.Info()).Msg("evaluation done")
	}
	return rep
}

func (e *Engine) evaluateOne(ctx context.Context, r *domain.Reminder, offset int, local time.Time, rep *Report) {
	target, ok := ShouldFire(r.DueDay, offset, local)
	if !ok {
		return
	}
	rep.Due++

	// Keyed by the month of the due date, so a lead that fires late in the
	// previous month belongs to the same cycle as the due-day notification.
	due := target.AddDate(0, 0, offset)
	key := domain.FireKey{ReminderID: r.ID, Offset: offset, Period: domain.PeriodOf(due)}
	log := e.log.With().
		Int64("reminder_id", r.ID).
		Int64("chat_id", r.Recipient).
		Int("offset", offset).
		Str("period", key.Period.String()).
		Logger()

	fired, err := e.tracker.HasFired(key)
	if err != nil {
		// Skipping is safe: the next tick of the same day retries.
		metrics.StorageErrors.WithLabelValues("has_fired").Inc()
		log.Error().Err(err).Msg("check fire record")
		rep.Errors++
		return
	}
	if fired {
		rep.Skipped++
		return
	}

	label := strconv.Itoa(offset)
	if err := e.deliver(ctx, r, offset); err != nil {
		metrics.DeliveryFailures.WithLabelValues(label).Inc()
		log.Warn().Err(err).Msg("notification not delivered, will retry on next tick today")
		rep.Failed++
		return
	}
	metrics.NotificationsSent.WithLabelValues(label).Inc()
	rep.Fired++

	if err := e.tracker.MarkFired(key); err != nil {
		metrics.StorageErrors.WithLabelValues("mark_fired").Inc()
		log.Error().Err(err).Msg("record fire; notification may repeat")
		rep.Errors++
		return
	}
	log.Info().Msg("notification sent")
}

func (e *Engine) deliver(ctx context.Context, r *domain.Reminder, offset int) (err error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.NotifyTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: notifier panic: %v", domain.ErrDeliveryFailure, p)
		}
	}()

	if e.notifier == nil {
		return fmt.Errorf("%w: no notifier", domain.ErrDeliveryFailure)
	}

	if err := e.notifier.Send(ctx, r.Recipient, domain.NotificationText(r, offset)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	return nil
}

// SetNotifier binds the transport once it exists. Evaluations before that
// count every due firing as failed.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Forget purges tracker state of a removed reminder. It waits for a running
// evaluation so that an in-flight delivery cannot record the key again.
func (e *Engine) Forget(reminderID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tracker.Forget(reminderID); err != nil {
		metrics.StorageErrors.WithLabelValues("forget").Inc()
		return fmt.Errorf("forget reminder %d: %w", reminderID, err)
	}
	return nil
}

// Compact drops fire records older than the retention window relative to now.
func (e *Engine) Compact(now time.Time) (int, error) {
	before := domain.PeriodOf(now.In(e.opts.Location)).AddMonths(-e.opts.RetentionMonths)
	n, err := e.tracker.Compact(before)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("compact").Inc()
		return 0, fmt.Errorf("compact before %s: %w", before, err)
	}
	return n, nil
}
