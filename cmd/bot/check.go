package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tazhate/billbot/config"
	"github.com/tazhate/billbot/internal/scheduler"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the notifications a day would produce, without sending them",
	Long: `Print the notifications a day would produce, without sending them.

Fire records are kept in memory only, so the real tracker is left untouched.

Examples:
  billbot check
  billbot check --date 2026-02-26`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")

		cfg, log, err := setup()
		if err != nil {
			return err
		}

		day := time.Now().In(cfg.Timezone)
		if dateStr != "" {
			day, err = time.ParseInLocation("2006-01-02", dateStr, cfg.Timezone)
			if err != nil {
				return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", dateStr)
			}
		}

		st, err := openStores(cfg, log)
		if err != nil {
			return err
		}
		defer st.Close()

		_, err = runCheck(cmd.Context(), cfg, st.reminders, day, cmd.OutOrStdout())
		return err
	},
}

func init() {
	checkCmd.Flags().String("date", "", "day to evaluate as YYYY-MM-DD (default today)")
}

// runCheck evaluates one calendar day at its fire time against a fresh
// in-memory tracker and prints what would be sent.
func runCheck(ctx context.Context, cfg *config.Config, source scheduler.ReminderSource, day time.Time, w io.Writer) (scheduler.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p := &printNotifier{w: w}
	engine := scheduler.NewEngine(source, scheduler.NewMemoryTracker(), p, engineOptions(cfg), zerolog.Nop())

	y, m, d := day.In(cfg.Timezone).Date()
	at := time.Date(y, m, d, cfg.FireHour, cfg.FireMin, 0, 0, cfg.Timezone)

	rep := engine.Evaluate(ctx, at)
	fmt.Fprintf(w, "%s: %d reminder(s), %d notification(s)\n", rep.Date.Format("2006-01-02"), rep.Reminders, rep.Fired)
	if rep.Errors > 0 {
		return rep, fmt.Errorf("%d error(s) during evaluation", rep.Errors)
	}
	return rep, nil
}

type printNotifier struct {
	w io.Writer
}

func (p *printNotifier) Send(ctx context.Context, recipient int64, text string) error {
	_, err := fmt.Fprintf(p.w, "  chat %d: %s\n", recipient, text)
	return err
}
