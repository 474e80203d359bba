package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tazhate/billbot/internal/clients/caldav"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List CalDAV calendars, to pick a value for CALDAV_CALENDAR",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		if cfg.CalDAVUsername == "" || cfg.CalDAVPassword == "" {
			return errors.New("CALDAV_USERNAME and CALDAV_PASSWORD are required")
		}

		client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar, caldav.Options{})
		cals, err := client.DiscoverCalendars(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tNAME\tDESCRIPTION")
		for _, c := range cals {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Path, c.DisplayName, c.Description)
		}
		return tw.Flush()
	},
}
