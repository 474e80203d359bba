package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// compactSpec runs fire record compaction shortly after local midnight.
const compactSpec = "10 0 * * *"

// Compactor trims tracker state that fell out of the retention window.
type Compactor interface {
	Compact(now time.Time) (int, error)
}

// Scheduler drives an Evaluator from cron ticks in the configured location.
type Scheduler struct {
	cron      *cron.Cron
	tickSpec  string
	evaluator Evaluator
	compactor Compactor
	log       zerolog.Logger
	now       func() time.Time
	ctx       context.Context
}

func New(tickSpec string, location *time.Location, evaluator Evaluator, compactor Compactor, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:      c,
		tickSpec:  tickSpec,
		evaluator: evaluator,
		compactor: compactor,
		log:       log,
		now:       time.Now,
		ctx:       context.Background(),
	}
}

// Start registers the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.tickSpec, s.tick); err != nil {
		return fmt.Errorf("add evaluation tick: %w", err)
	}
	if s.compactor != nil {
		if _, err := s.cron.AddFunc(compactSpec, s.compact); err != nil {
			return fmt.Errorf("add compaction: %w", err)
		}
	}

	s.cron.Start()
	s.log.Info().Str("tick", s.tickSpec).Str("tz", s.cron.Location().String()).Msg("scheduler started")

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	rep := s.evaluator.Evaluate(s.ctx, s.now())
	if !rep.Early && rep.Due == 0 {
		s.log.Debug().Str("date", rep.Date.Format("2006-01-02")).Int("reminders", rep.Reminders).Msg("nothing due")
	}
}

func (s *Scheduler) compact() {
	n, err := s.compactor.Compact(s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("compact fire records")
		return
	}
	s.log.Info().Int("removed", n).Msg("fire records compacted")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
