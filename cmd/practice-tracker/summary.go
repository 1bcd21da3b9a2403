package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dtorres47/practice-tracker/internal/config"
	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/stats"
	"github.com/dtorres47/practice-tracker/internal/tracker"
)

var (
	summaryUser string
	summaryDays int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a user's totals, streak and recent days",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		days, err := resolveDays(summaryDays, cfg.ChartDays)
		if err != nil {
			return err
		}
		backend, closeBackend, err := openBackend(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer closeBackend()

		svc := tracker.New(backend, tracker.WithLocation(loc), tracker.WithDays(days))
		view, err := svc.Summary(cmd.Context(), summaryUser, 0)
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), view)
		return nil
	},
}

var practicesCmd = &cobra.Command{
	Use:   "practices",
	Short: "List the practices a user can log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backend, closeBackend, err := openBackend(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer closeBackend()

		ps, err := tracker.New(backend).Practices(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range ps {
			fmt.Fprintln(cmd.OutOrStdout(), p.Name)
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryUser, "user", "u", "", "user id")
	summaryCmd.Flags().IntVar(&summaryDays, "days", 0, "days to show (default CHART_DAYS)")
	_ = summaryCmd.MarkFlagRequired("user")
}

// resolveDays picks the --days value, falling back to the configured width.
func resolveDays(flag, configured int) (int, error) {
	if flag == 0 {
		return configured, nil
	}
	if flag < 0 || flag > config.MaxChartDays() {
		return 0, &practice.ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", config.MaxChartDays())}
	}
	return flag, nil
}

// printView writes the view as plain text, one bar per day.
func printView(w io.Writer, v stats.View) {
	fmt.Fprintf(w, "user:   %s\n", v.UserID)
	fmt.Fprintf(w, "total:  %d\n", v.Total)
	fmt.Fprintf(w, "streak: %d\n", v.Streak)

	names := make([]string, 0, len(v.Totals))
	for p := range v.Totals {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		fmt.Fprintf(w, "  %-24s %d\n", p, v.Totals[p])
	}

	peak := 0
	for _, d := range v.Window {
		if d.Total > peak {
			peak = d.Total
		}
	}
	fmt.Fprintln(w)
	for _, d := range v.Window {
		bar := 0
		if peak > 0 {
			bar = d.Total * 40 / peak
		}
		fmt.Fprintf(w, "%s %6d %s\n", d.Date, d.Total, strings.Repeat("#", bar))
	}
}
