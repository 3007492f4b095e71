package main

import (
	"fmt"
	"strconv"

	"github.com/UniQw/reportq"
	"github.com/spf13/cobra"
)

func newStatsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count deliveries per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			counts, err := a.client.Stats(cmd.Context(), a.cfg.Queue.Name)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(reportq.AllStates))
			for _, st := range reportq.AllStates {
				rows = append(rows, []string{string(st), strconv.FormatInt(counts[st], 10)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s\n%s\n", a.cfg.Queue.Name, renderTable([]string{"State", "Count"}, rows))
			return nil
		},
	}
}
