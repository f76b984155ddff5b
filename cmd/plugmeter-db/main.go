// plugmeter-db inspects a local plugmeter SQLite database.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plugmeter/plugmeter/pkg/storage"
)

var (
	dbPath   string
	since    time.Duration
	limit    int
	timezone string

	rootCmd = &cobra.Command{
		Use:   "plugmeter-db",
		Short: "plugmeter database CLI",
		Long:  "Command-line tool for inspecting readings and settings in a plugmeter SQLite database.",
	}

	countsCmd = &cobra.Command{
		Use:   "counts",
		Short: "Show stored readings per device",
		Args:  cobra.NoArgs,
		RunE:  showCounts,
	}

	readingsCmd = &cobra.Command{
		Use:   "readings <device-id>",
		Short: "Show recent readings, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  showReadings,
	}

	statsCmd = &cobra.Command{
		Use:   "stats <device-id> [hourly|daily|stats]",
		Short: "Show aggregated usage",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  showStats,
	}

	settingsCmd = &cobra.Command{
		Use:   "settings <device-id>",
		Short: "Show stored device settings",
		Args:  cobra.ExactArgs(1),
		RunE:  showSettings,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "plugmeter.db", "Database file path")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "Local", "Zone used to group hours and days")

	readingsCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look")
	readingsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	statsCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look")

	rootCmd.AddCommand(countsCmd)
	rootCmd.AddCommand(readingsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*storage.SQLiteProvider, error) {
	db := storage.NewSQLite(dbPath)
	if err := db.Validate(); err != nil {
		return nil, err
	}
	if err := db.OpenReadOnly(); err != nil {
		return nil, err
	}
	return db, nil
}

func newTable(out io.Writer, header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)
	return w
}

func showCounts(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := db.CountReadings(cmd.Context())
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := newTable(cmd.OutOrStdout(), "DEVICE", "READINGS")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%d\n", id, counts[id])
	}
	return w.Flush()
}

func showReadings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	end := time.Now()
	readings, err := db.GetReadings(cmd.Context(), args[0], end.Add(-since), end, limit)
	if err != nil {
		return err
	}

	w := newTable(cmd.OutOrStdout(), "TIME", "WATTS", "KWH", "COST")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%.1f\t%.6f\t%.4f\n", r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Watts, r.KWh, r.Cost)
	}
	return w.Flush()
}

func showStats(cmd *cobra.Command, args []string) error {
	kind := storage.AggregateStats
	if len(args) > 1 {
		var err error
		if kind, err = storage.ParseAggregateKind(args[1]); err != nil {
			return err
		}
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	end := time.Now()
	history, err := storage.Aggregate(cmd.Context(), db, args[0], kind, end.Add(-since), end, loc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch kind {
	case storage.AggregateHourly:
		w := newTable(out, "HOUR", "AVG W", "MAX W", "KWH", "COST", "COUNT")
		for _, h := range history.Hourly {
			fmt.Fprintf(w, "%02d:00\t%.1f\t%.1f\t%.4f\t%.2f\t%d\n", h.Hour, h.AvgWatts, h.MaxWatts, h.TotalKWh, h.TotalCost, h.Count)
		}
		return w.Flush()
	case storage.AggregateDaily:
		w := newTable(out, "DAY", "AVG W", "MAX W", "KWH", "COST", "COUNT")
		for _, d := range history.Daily {
			fmt.Fprintf(w, "%04d-%02d-%02d\t%.1f\t%.1f\t%.4f\t%.2f\t%d\n", d.Year, d.Month, d.Day, d.AvgWatts, d.MaxWatts, d.TotalKWh, d.TotalCost, d.Count)
		}
		return w.Flush()
	default:
		s := history.Stats
		w := newTable(out, "READINGS", "AVG W", "MAX W", "KWH", "COST")
		fmt.Fprintf(w, "%d\t%.1f\t%.1f\t%.4f\t%.2f\n", s.ReadingCount, s.AvgWatts, s.MaxWatts, s.TotalKWh, s.TotalCost)
		return w.Flush()
	}
}

func showSettings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	settings, version, err := db.GetDeviceSettings(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := newTable(cmd.OutOrStdout(), "DEVICE", "RATE", "CURRENCY", "VERSION", "UPDATED")
	updated := "-"
	if !settings.UpdatedAt.IsZero() {
		updated = settings.UpdatedAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "%s\t%.2f\t%s\t%d\t%s\n", args[0], settings.RatePerKWh, settings.Currency, version, updated)
	return w.Flush()
}
