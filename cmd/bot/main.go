package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tazhate/billbot/config"
	"github.com/tazhate/billbot/internal/logger"
	"github.com/tazhate/billbot/internal/scheduler"
	"github.com/tazhate/billbot/internal/service"
	"github.com/tazhate/billbot/internal/storage"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "billbot",
	Short:         "Monthly bill reminders over Telegram",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(calendarsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.LogLevel, cfg.AppEnv), nil
}

// stores holds the reminder store and, when SQLite is in use for either
// reminders or fire records, the database handle.
type stores struct {
	reminders service.ReminderStore
	tracker   scheduler.FireTracker
	closers   []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStores(cfg *config.Config, log zerolog.Logger) (*stores, error) {
	s := &stores{}

	var db *storage.Storage
	if cfg.StorageDriver == config.DriverSQLite || cfg.FireTracker == config.TrackerSQLite {
		var err error
		db, err = storage.New(cfg.DatabasePath, log)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, db.Close)
	}

	switch cfg.StorageDriver {
	case config.DriverSQLite:
		s.reminders = db
	default:
		fs, err := storage.OpenFile(cfg.RemindersPath, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open reminder file: %w", err)
		}
		s.reminders = fs
		s.closers = append(s.closers, fs.Close)
	}

	switch cfg.FireTracker {
	case config.TrackerSQLite:
		s.tracker = db
		if err := pruneFireRecords(db, s.reminders, log); err != nil {
			s.Close()
			return nil, err
		}
	default:
		s.tracker = scheduler.NewMemoryTracker()
	}

	log.Info().
		Str("storage", cfg.StorageDriver).
		Str("tracker", cfg.FireTracker).
		Msg("stores opened")
	return s, nil
}

// pruneFireRecords drops fire records of reminders the store no longer has.
// A JSON store that was reset reissues ids from 1.
func pruneFireRecords(db *storage.Storage, reminders service.ReminderStore, log zerolog.Logger) error {
	all, err := reminders.LoadAll()
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	ids := make([]int64, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}

	n, err := db.PruneExcept(ids)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warn().Int("removed", n).Msg("dropped fire records of unknown reminders")
	}
	return nil
}

func engineOptions(cfg *config.Config) scheduler.Options {
	return scheduler.Options{
		Offsets:         cfg.Offsets,
		Location:        cfg.Timezone,
		FireHour:        cfg.FireHour,
		FireMin:         cfg.FireMin,
		NotifyTimeout:   cfg.NotifyTimeout,
		RetentionMonths: cfg.RetentionMonths,
	}
}
