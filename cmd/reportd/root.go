package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "reportd",
		Short: "Weekly task reports with queued mail delivery",
		Long: `reportd renders weekly task reports to PDF and delivers them by mail.

Usage:
  reportd serve                                  Run delivery workers and the report schedule
  reportd run combined [--from D --to D]         Send the combined report to admins now
  reportd run clients [--from D --to D]          Send per-client reports and the admin summary now
  reportd dead ls                                List permanently failed deliveries
  reportd dead retry <id>                        Re-queue a failed delivery with fresh attempts
  reportd dead rm <id>                           Delete a failed delivery
  reportd stats                                  Count deliveries per state

Dates are YYYY-MM-DD; --to is exclusive. Without them the previous
Monday-to-Monday week is used.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	root.AddCommand(
		newServeCmd(&cfgPath),
		newRunCmd(&cfgPath),
		newDeadCmd(&cfgPath),
		newStatsCmd(&cfgPath),
	)
	return root
}
