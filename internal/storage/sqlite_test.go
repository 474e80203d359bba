package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhate/billbot/internal/domain"
)

func openTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billbot.db")
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStorage_Reminders(t *testing.T) {
	s, _ := openTestStorage(t)

	r1, err := s.Add(1, 15, "rent")
	require.NoError(t, err)
	r2, err := s.Add(1, 20, "gas")
	require.NoError(t, err)
	r3, err := s.Add(2, 1, "phone")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, []int64{r1.ID, r2.ID, r3.ID})

	removed, err := s.Remove(r2.ID, 2)
	require.NoError(t, err)
	assert.False(t, removed, "other recipient cannot remove")

	removed, err = s.Remove(r2.ID, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	r4, err := s.Add(1, 3, "water")
	require.NoError(t, err)
	assert.Equal(t, int64(4), r4.ID)

	list, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rent", list[0].Text)
	assert.Equal(t, "water", list[1].Text)

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := s.List(99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStorage_AddValidates(t *testing.T) {
	s, _ := openTestStorage(t)

	_, err := s.Add(1, 0, "rent")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.Add(1, 5, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStorage_HighestIDNotReused(t *testing.T) {
	s, _ := openTestStorage(t)

	r, err := s.Add(1, 1, "a")
	require.NoError(t, err)
	removed, err := s.Remove(r.ID, 1)
	require.NoError(t, err)
	require.True(t, removed)

	next, err := s.Add(1, 1, "b")
	require.NoError(t, err)
	assert.Equal(t, r.ID+1, next.ID)
}

func TestStorage_FireRecords(t *testing.T) {
	s, _ := openTestStorage(t)

	oct := domain.Period{Year: 2026, Month: time.October}
	key := domain.FireKey{ReminderID: 1, Offset: 2, Period: oct}

	fired, err := s.HasFired(key)
	require.NoError(t, err)
	assert.False(t, fired)

	require.NoError(t, s.MarkFired(key))
	require.NoError(t, s.MarkFired(key), "idempotent")

	fired, err = s.HasFired(key)
	require.NoError(t, err)
	assert.True(t, fired)

	other := key
	other.Offset = 1
	fired, err = s.HasFired(other)
	require.NoError(t, err)
	assert.False(t, fired)

	require.NoError(t, s.Forget(1))
	fired, err = s.HasFired(key)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestStorage_Compact(t *testing.T) {
	s, _ := openTestStorage(t)

	for _, p := range []domain.Period{
		{Year: 2025, Month: time.December},
		{Year: 2026, Month: time.July},
		{Year: 2026, Month: time.August},
		{Year: 2026, Month: time.October},
	} {
		require.NoError(t, s.MarkFired(domain.FireKey{ReminderID: 1, Offset: 0, Period: p}))
	}

	n, err := s.Compact(domain.Period{Year: 2026, Month: time.August})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fired, err := s.HasFired(domain.FireKey{ReminderID: 1, Offset: 0, Period: domain.Period{Year: 2026, Month: time.August}})
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestStorage_FireRecordsSurviveReopen(t *testing.T) {
	s, path := openTestStorage(t)
	key := domain.FireKey{ReminderID: 3, Offset: 0, Period: domain.Period{Year: 2026, Month: time.May}}
	require.NoError(t, s.MarkFired(key))
	require.NoError(t, s.Close())

	reopened, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	fired, err := reopened.HasFired(key)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestStorage_CorruptDatabaseRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billbot.db")
	require.NoError(t, os.WriteFile(path, []byte("this is definitely not sqlite, just some text padding it out"), 0o644))

	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.Add(1, 2, "rent")
	assert.NoError(t, err)

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestStorage_PruneExcept(t *testing.T) {
	s, _ := openTestStorage(t)
	p := domain.Period{Year: 2026, Month: time.October}
	for _, id := range []int64{1, 2, 3} {
		for _, offset := range []int{2, 0} {
			require.NoError(t, s.MarkFired(domain.FireKey{ReminderID: id, Offset: offset, Period: p}))
		}
	}

	n, err := s.PruneExcept([]int64{2})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	fired, err := s.HasFired(domain.FireKey{ReminderID: 2, Offset: 0, Period: p})
	require.NoError(t, err)
	assert.True(t, fired)
	fired, err = s.HasFired(domain.FireKey{ReminderID: 1, Offset: 0, Period: p})
	require.NoError(t, err)
	assert.False(t, fired)

	n, err = s.PruneExcept(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "no live reminders clears everything")
}
