package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/models"
)

func newForecastCmd(a *app) *cobra.Command {
	var (
		horizon int
		out     string
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast daily request counts for the next 1-7 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if horizon < 1 || horizon > forecast.MaxHorizon {
				return fmt.Errorf("--horizon must be between 1 and %d, got %d", forecast.MaxHorizon, horizon)
			}
			records, err := a.loadHistory(cmd)
			if err != nil {
				return err
			}
			arts, err := models.LoadArtifacts(a.cfg.ModelDir, models.LoadOptions{
				Endpoint: a.cfg.BYOMURL,
				Timeout:  a.cfg.ModelTimeout,
			})
			if err != nil {
				return err
			}
			holidays, err := a.holidays()
			if err != nil {
				return err
			}

			f := forecast.New(arts, forecast.Options{
				Holidays:              holidays,
				RollingExcludeCurrent: a.cfg.RollingExcludeCurrent,
				Logger:                a.logger,
			})
			res, err := f.Forecast(cmd.Context(), records, horizon)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				if err := writeTableFile(out, forecast.Table(res.Rows)); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %d rows to %s\n", len(res.Rows), out)
			} else {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "date\tpredicted_count")
				for _, r := range res.Rows {
					fmt.Fprintf(tw, "%s\t%s\n", formatDate(r.Date), strconv.FormatFloat(r.PredictedCount, 'f', 2, 64))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if res.Truncated() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: forecast stopped after %d of %d days: %s\n",
					len(res.Rows), res.Requested, res.StopReason())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", forecast.MaxHorizon, "days to forecast (1-7)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write rows to a .csv or .xlsx file")
	return cmd
}
