package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/UniQw/reportq"
	"github.com/spf13/cobra"
)

func newDeadCmd(cfgPath *string) *cobra.Command {
	dead := &cobra.Command{
		Use:   "dead",
		Short: "Inspect and act on permanently failed deliveries",
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List failed deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			tasks, err := a.client.ListTasks(cmd.Context(), a.cfg.Queue.Name, reportq.StateDead, nil)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no failed deliveries")
				return nil
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				to := ""
				if d, err := t.Delivery(); err == nil {
					to = fmt.Sprint(d.To)
				}
				rows = append(rows, []string{
					t.ID, t.Type, to,
					strconv.Itoa(t.Attempts) + "/" + strconv.Itoa(t.MaxAttempts),
					formatMillis(t.CompletedAt, a),
					t.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Type", "To", "Attempts", "Failed at", "Last error"}, rows))
			return nil
		},
	}

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed delivery with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.client.RetryDead(cmd.Context(), a.cfg.Queue.Name, args[0]); err != nil {
				return fmt.Errorf("retry %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "re-queued %s\n", args[0])
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a failed delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.client.DeleteTask(cmd.Context(), a.cfg.Queue.Name, args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	dead.AddCommand(ls, retry, rm)
	return dead
}

func formatMillis(ms int64, a *app) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).In(a.loc).Format(time.DateTime)
}
