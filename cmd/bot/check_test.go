package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhate/billbot/config"
	"github.com/tazhate/billbot/internal/scheduler"
	"github.com/tazhate/billbot/internal/storage"
)

func checkConfig() *config.Config {
	return &config.Config{
		Timezone:        time.UTC,
		FireHour:        8,
		Offsets:         []int{2, 1, 0},
		NotifyTimeout:   time.Second,
		RetentionMonths: 2,
	}
}

func TestRunCheck(t *testing.T) {
	store, err := storage.OpenFile(filepath.Join(t.TempDir(), "reminders.json"), zerolog.Nop())
	require.NoError(t, err)
	_, err = store.Add(42, 1, "Internet")
	require.NoError(t, err)
	_, err = store.Add(42, 28, "Rent")
	require.NoError(t, err)
	_, err = store.Add(7, 30, "Phone")
	require.NoError(t, err)

	var out bytes.Buffer
	rep, err := runCheck(context.Background(), checkConfig(), store, time.Date(2026, time.February, 27, 0, 0, 0, 0, time.UTC), &out)
	require.NoError(t, err)

	// Feb 27: Internet two days ahead of Mar 1, Rent one day ahead of the 28th.
	// February has no 30th, so Phone stays quiet.
	assert.Equal(t, 3, rep.Reminders)
	assert.Equal(t, 2, rep.Fired)
	assert.Contains(t, out.String(), "chat 42: 📅 2 days left: Internet")
	assert.Contains(t, out.String(), "chat 42: ⏰ 1 day left: Rent")
	assert.NotContains(t, out.String(), "Phone")
	assert.Contains(t, out.String(), "2026-02-27: 3 reminder(s), 2 notification(s)")
}

func TestRunCheck_Empty(t *testing.T) {
	store, err := storage.OpenFile(filepath.Join(t.TempDir(), "none.json"), zerolog.Nop())
	require.NoError(t, err)

	var out bytes.Buffer
	rep, err := runCheck(context.Background(), checkConfig(), store, time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC), &out)
	require.NoError(t, err)
	assert.Zero(t, rep.Fired)
	assert.Contains(t, out.String(), "0 reminder(s)")
}

func TestOpenStores(t *testing.T) {
	dir := t.TempDir()
	cfg := checkConfig()
	cfg.RemindersPath = filepath.Join(dir, "reminders.json")
	cfg.DatabasePath = filepath.Join(dir, "billbot.db")

	cfg.StorageDriver = config.DriverJSON
	cfg.FireTracker = config.TrackerMemory
	st, err := openStores(cfg, zerolog.Nop())
	require.NoError(t, err)
	_, isFile := st.reminders.(*storage.FileStore)
	assert.True(t, isFile)
	st.Close()

	cfg.StorageDriver = config.DriverSQLite
	cfg.FireTracker = config.TrackerSQLite
	st, err = openStores(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	db, isDB := st.reminders.(*storage.Storage)
	require.True(t, isDB)
	assert.Same(t, db, st.tracker)
}

func TestOpenStores_ResetJSONStoreDropsStaleFireRecords(t *testing.T) {
	dir := t.TempDir()
	cfg := checkConfig()
	cfg.RemindersPath = filepath.Join(dir, "reminders.json")
	cfg.DatabasePath = filepath.Join(dir, "billbot.db")
	cfg.StorageDriver = config.DriverJSON
	cfg.FireTracker = config.TrackerSQLite

	st, err := openStores(cfg, zerolog.Nop())
	require.NoError(t, err)
	r, err := st.reminders.Add(42, 13, "Rent")
	require.NoError(t, err)
	require.Equal(t, int64(1), r.ID)

	var out bytes.Buffer
	engine := scheduler.NewEngine(st.reminders, st.tracker, &printNotifier{w: &out}, engineOptions(cfg), zerolog.Nop())
	rep := engine.Evaluate(context.Background(), time.Date(2026, time.October, 11, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 1, rep.Fired)
	st.Close()

	// The reminder file is lost; the fire records are not.
	require.NoError(t, os.Remove(cfg.RemindersPath))

	st, err = openStores(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	r, err = st.reminders.Add(42, 15, "Water")
	require.NoError(t, err)
	require.Equal(t, int64(1), r.ID, "a reset store starts its ids over")

	out.Reset()
	engine = scheduler.NewEngine(st.reminders, st.tracker, &printNotifier{w: &out}, engineOptions(cfg), zerolog.Nop())
	rep = engine.Evaluate(context.Background(), time.Date(2026, time.October, 13, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, rep.Fired)
	assert.Zero(t, rep.Skipped)
	assert.Contains(t, out.String(), "📅 2 days left: Water")
}
