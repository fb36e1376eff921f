package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alexjbarnes/adb-sync/internal/state"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [pipeline]",
		Short: "Show recent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			pipeline := ""
			if len(args) == 1 {
				pipeline = args[0]
			}

			runs, err := st.Runs(pipeline, limit)
			if err != nil {
				return err
			}

			return printHistory(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}

func printHistory(out io.Writer, runs []state.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "no runs recorded")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tPIPELINE\tTRIGGER\tDEVICE\tUP\tDOWN\tSKIP\tFAIL\tRESULT")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			humanize.Time(r.StartedAt), r.Pipeline, r.Trigger, dash(r.Serial),
			r.Uploaded, r.Downloaded, r.Skipped, r.Errored, runResult(r))
	}

	return w.Flush()
}

func runResult(r state.Run) string {
	switch {
	case r.Failed():
		return "error: " + r.Error
	case r.Cancelled:
		return "stopped"
	case r.Degraded:
		return "ok (shallow)"
	default:
		return "ok"
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
