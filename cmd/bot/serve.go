package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tazhate/billbot/internal/bot"
	"github.com/tazhate/billbot/internal/clients/caldav"
	"github.com/tazhate/billbot/internal/metrics"
	"github.com/tazhate/billbot/internal/scheduler"
	"github.com/tazhate/billbot/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the HTTP server and the reminder scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	st, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	calOpts := caldav.Options{
		Location: cfg.Timezone,
		Offsets:  cfg.Offsets,
		FireHour: cfg.FireHour,
		FireMin:  cfg.FireMin,
	}

	engine := scheduler.NewEngine(st.reminders, st.tracker, nil, engineOptions(cfg), log)

	reminderSvc := service.NewReminderService(st.reminders, engine, calOpts, log)
	if cfg.CalDAVEnabled() {
		reminderSvc.SetMirror(caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar, calOpts))
		log.Info().Str("calendar", cfg.CalDAVCalendar).Msg("caldav mirror enabled")
	}

	tgBot, err := bot.New(cfg, reminderSvc, cfg.Offsets, log)
	if err != nil {
		return err
	}
	engine.SetNotifier(tgBot)

	sched := scheduler.New(cfg.TickSpec, cfg.Timezone, engine, engine, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- sched.Start(ctx) }()
	go func() { errCh <- tgBot.Start(ctx) }()

	log.Info().
		Str("tz", cfg.Timezone.String()).
		Str("fire_time", cfg.FireTime).
		Ints("offsets", cfg.Offsets).
		Msg("billbot started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("component failed")
		}
		stop()
	}

	log.Info().Msg("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stop http server")
	}
	reminderSvc.Wait()

	log.Info().Msg("billbot stopped")
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}
