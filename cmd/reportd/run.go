package main

import (
	"fmt"

	"github.com/UniQw/reportq/pipeline"
	"github.com/UniQw/reportq/report"
	"github.com/spf13/cobra"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:       "run <combined|clients>",
		Short:     "Generate and enqueue reports once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"combined", "clients"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			period := a.lastWeek()
			if from != "" || to != "" {
				if from == "" || to == "" {
					return fmt.Errorf("--from and --to must be given together")
				}
				if period, err = report.ParsePeriod(from, to, a.loc); err != nil {
					return err
				}
			}

			r, err := a.newRunner()
			if err != nil {
				return err
			}
			defer r.Close()

			var res *pipeline.Result
			switch args[0] {
			case "combined":
				res, err = r.p.RunCombined(cmd.Context(), period)
			case "clients":
				res, err = r.p.RunPerClient(cmd.Context(), period)
			default:
				return fmt.Errorf("unknown report %q (want combined or clients)", args[0])
			}
			if res != nil {
				printResult(cmd, period, res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "day after the last day of the range (YYYY-MM-DD)")
	return cmd
}

func printResult(cmd *cobra.Command, period report.Period, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: enqueued %d document(s)\n", period.Label(), len(res.Enqueued))
	for _, name := range res.Enqueued {
		fmt.Fprintf(out, "  %s\n", name)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "skipped %d client(s) without tasks\n", len(res.Skipped))
	}
	for _, f := range res.Failed {
		fmt.Fprintf(out, "failed: %s: %v\n", f.Client.FullName(), f.Err)
	}
	if res.Summary {
		fmt.Fprintln(out, "admin summary enqueued")
	}
}
