package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhate/billbot/internal/domain"
)

func TestMemoryTracker(t *testing.T) {
	tr := NewMemoryTracker()
	key := domain.FireKey{ReminderID: 1, Offset: 0, Period: domain.Period{Year: 2026, Month: time.October}}

	fired, err := tr.HasFired(key)
	require.NoError(t, err)
	assert.False(t, fired)

	require.NoError(t, tr.MarkFired(key))
	require.NoError(t, tr.MarkFired(key))
	assert.Equal(t, 1, tr.Len(), "marking twice has no additional effect")

	fired, err = tr.HasFired(key)
	require.NoError(t, err)
	assert.True(t, fired)

	next := key
	next.Period = key.Period.AddMonths(1)
	fired, err = tr.HasFired(next)
	require.NoError(t, err)
	assert.False(t, fired, "a new period is a new key")
}

func TestMemoryTracker_Forget(t *testing.T) {
	tr := NewMemoryTracker()
	p := domain.Period{Year: 2026, Month: time.October}
	require.NoError(t, tr.MarkFired(domain.FireKey{ReminderID: 1, Offset: 0, Period: p}))
	require.NoError(t, tr.MarkFired(domain.FireKey{ReminderID: 1, Offset: 2, Period: p}))
	require.NoError(t, tr.MarkFired(domain.FireKey{ReminderID: 2, Offset: 0, Period: p}))

	require.NoError(t, tr.Forget(1))
	assert.Equal(t, 1, tr.Len())

	fired, _ := tr.HasFired(domain.FireKey{ReminderID: 2, Offset: 0, Period: p})
	assert.True(t, fired)
}

func TestMemoryTracker_Compact(t *testing.T) {
	tr := NewMemoryTracker()
	cur := domain.Period{Year: 2026, Month: time.January}
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.MarkFired(domain.FireKey{ReminderID: 1, Period: cur.AddMonths(-i)}))
	}

	n, err := tr.Compact(cur.AddMonths(-2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, tr.Len())
}
