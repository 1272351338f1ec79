package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/HatiCode/demandcast/pkg/analytics"
	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

func (a *app) loadHistory(cmd *cobra.Command) ([]dataprep.DailyRecord, error) {
	adapter, err := a.adapter()
	if err != nil {
		return nil, err
	}
	opts, err := a.prepOptions()
	if err != nil {
		return nil, err
	}
	records, err := dataprep.Load(cmd.Context(), adapter, opts)
	if err != nil {
		return nil, err
	}
	a.logger.Info("history loaded", "adapter", adapter.Name(), "days", len(records))
	return records, nil
}

func newPrepareCmd(a *app) *cobra.Command {
	var (
		out  string
		rows int
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Aggregate raw records into the daily feature table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.loadHistory(cmd)
			if err != nil {
				return err
			}
			table := dataprep.ToTable(records)
			if out != "" {
				if err := writeTableFile(out, table); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d days to %s\n", len(records), out)
				return nil
			}
			return printTable(cmd.OutOrStdout(), table.Head(rows))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the full table to a .csv or .xlsx file")
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "rows to print when --out is not set")
	return cmd
}

type describeOutput struct {
	Summary analytics.Summary      `json:"summary"`
	Year    int                    `json:"year,omitempty"`
	Monthly []analytics.MonthTotal `json:"monthly"`
}

func newDescribeCmd(a *app) *cobra.Command {
	var (
		year   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print summary statistics and monthly totals of daily request counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.loadHistory(cmd)
			if err != nil {
				return err
			}
			if year == 0 {
				if years := analytics.Years(records); len(years) > 0 {
					year = years[len(years)-1]
				}
			}
			out := describeOutput{
				Summary: analytics.Describe(records),
				Year:    year,
				Monthly: analytics.MonthlyTotals(records, year),
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			s := out.Summary
			fmt.Fprintf(tw, "count\t%d\n", s.Count)
			for _, row := range []struct {
				name string
				v    analytics.Float
			}{
				{"mean", s.Mean}, {"std", s.Std}, {"min", s.Min}, {"25%", s.Q25},
				{"50%", s.Q50}, {"75%", s.Q75}, {"max", s.Max}, {"range", s.Range},
				{"mean daily delta", s.MeanDailyDelta},
			} {
				fmt.Fprintf(tw, "%s\t%s\n", row.name, formatStat(row.v))
			}
			if len(out.Monthly) > 0 {
				fmt.Fprintf(tw, "\nmonthly totals %d\t\n", year)
				for _, m := range out.Monthly {
					fmt.Fprintf(tw, "%s\t%s\n", m.Name, strconv.FormatFloat(m.Total, 'f', -1, 64))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year for monthly totals (default latest)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func formatStat(v analytics.Float) string {
	if !v.Defined() {
		return "-"
	}
	return strconv.FormatFloat(float64(v), 'f', 2, 64)
}

func printTable(w io.Writer, t *tabular.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, c := range t.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	for _, rec := range t.Records {
		for i, cell := range rec {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
