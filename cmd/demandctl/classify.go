package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HatiCode/demandcast/pkg/sentiment"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify the sentiment of one text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			p, err := a.sentiment().Classify(cmd.Context(), text)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%.2f)\n", p.Label, p.Confidence)
			for _, l := range sentiment.Labels {
				if s, ok := p.Scores[l]; ok {
					fmt.Fprintf(w, "  %-8s %.4f\n", l, s)
				}
			}
			return nil
		},
	}
}

func newClassifyBatchCmd(a *app) *cobra.Command {
	var (
		column string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "classify-batch <file>",
		Short: "Label every row of a CSV/XLSX column; failed rows are labeled Error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			table, err := tabular.ReadFile(in)
			if err != nil {
				return err
			}
			if !table.Has(column) {
				return fmt.Errorf("column %q not found (available: %s)", column, strings.Join(table.Columns, ", "))
			}

			c, err := a.sentiment().Get(cmd.Context())
			if err != nil {
				return err
			}
			labeled, results, err := sentiment.ClassifyTable(cmd.Context(), c, table, column)
			if err != nil {
				return err
			}
			for _, r := range results {
				if !r.OK() {
					a.logger.Warn("row not classified", "error", r.Err)
				}
			}

			if out == "" {
				ext := filepath.Ext(in)
				out = strings.TrimSuffix(in, ext) + "_labeled" + ext
			}
			if err := writeTableFile(out, labeled); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "wrote %d rows to %s\n", len(results), out)
			counts := sentiment.Counts(results)
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "  %-8s %s\n", name, strconv.Itoa(counts[name]))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&column, "column", "c", "", "column holding the text")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <file>_labeled.<ext>)")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}
