package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvaluator struct {
	mu    sync.Mutex
	calls []time.Time
}

func (r *recordingEvaluator) Evaluate(ctx context.Context, now time.Time) Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, now)
	return Report{Date: dateOf(now)}
}

type countingCompactor struct {
	calls int
	err   error
}

func (c *countingCompactor) Compact(now time.Time) (int, error) {
	c.calls++
	return 0, c.err
}

func TestScheduler_TickEvaluatesAtCurrentTime(t *testing.T) {
	ev := &recordingEvaluator{}
	s := New("* * * * *", time.UTC, ev, nil, zerolog.Nop())
	fixed := time.Date(2026, time.October, 18, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.tick()
	require.Len(t, ev.calls, 1)
	assert.Equal(t, fixed, ev.calls[0])
}

func TestScheduler_TickAfterCancelIsNoop(t *testing.T) {
	ev := &recordingEvaluator{}
	s := New("* * * * *", time.UTC, ev, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ctx = ctx

	s.tick()
	assert.Empty(t, ev.calls)
}

func TestScheduler_CompactLogsErrors(t *testing.T) {
	c := &countingCompactor{err: errors.New("locked")}
	s := New("* * * * *", time.UTC, &recordingEvaluator{}, c, zerolog.Nop())

	assert.NotPanics(t, s.compact)
	assert.Equal(t, 1, c.calls)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := New("every minute please", time.UTC, &recordingEvaluator{}, nil, zerolog.Nop())
	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	ev := &recordingEvaluator{}
	s := New("@every 10ms", time.UTC, ev, &countingCompactor{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		return len(ev.calls) > 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	s.Stop()
}
