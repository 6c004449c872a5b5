package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"cadence/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload struct {
				Status   string `json:"status"`
				Database string `json:"database"`
				Queue    struct {
					Total      int `json:"total"`
					Pending    int `json:"pending"`
					Processing int `json:"processing"`
					Completed  int `json:"completed"`
					Failed     int `json:"failed"`
					Blocked    int `json:"blocked"`
				} `json:"queue"`
			}
			out := cmd.OutOrStdout()
			if err := ctx.apiGet("/status", &payload); err != nil {
				// The daemon may be down; fall back to the database.
				return ctx.withStore(func(st *store.Store) error {
					health, healthErr := st.Health(cmd.Context())
					if healthErr != nil {
						return err
					}
					fmt.Fprintln(out, "Daemon: unreachable")
					printQueueCounts(out, health.Total, health.Pending, health.Processing, health.Completed, health.Failed, health.Blocked)
					return nil
				})
			}
			fmt.Fprintf(out, "Daemon: %s (database %s)\n", payload.Status, payload.Database)
			printQueueCounts(out, payload.Queue.Total, payload.Queue.Pending, payload.Queue.Processing, payload.Queue.Completed, payload.Queue.Failed, payload.Queue.Blocked)
			return nil
		},
	}
}

func printQueueCounts(out io.Writer, total, pending, processing, completed, failed, blocked int) {
	rows := [][]string{
		{"pending", strconv.Itoa(pending)},
		{"processing", strconv.Itoa(processing)},
		{"completed", strconv.Itoa(completed)},
		{"failed", strconv.Itoa(failed)},
		{"blocked", strconv.Itoa(blocked)},
		{"total", strconv.Itoa(total)},
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}
