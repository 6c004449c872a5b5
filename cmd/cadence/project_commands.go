package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type projectView struct {
	ID              string `json:"id"`
	OrganizationID  string `json:"organization_id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	Priority        int    `json:"priority"`
	IsPaused        bool   `json:"is_paused"`
	NextScheduledAt string `json:"next_scheduled_at"`
}

type noteView struct {
	ID            int64  `json:"id"`
	Note          string `json:"note"`
	Status        string `json:"status"`
	RolloverCount int    `json:"rollover_count"`
	CreatedAt     string `json:"created_at"`
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage subscriber projects",
	}

	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectPauseCommand(ctx))
	projectCmd.AddCommand(newProjectResumeCommand(ctx))
	projectCmd.AddCommand(newProjectNoteCommand(ctx))
	projectCmd.AddCommand(newProjectNotesCommand(ctx))

	return projectCmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects and their next delivery slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload struct {
				Projects []projectView `json:"projects"`
			}
			if err := ctx.apiGet("/projects", &payload); err != nil {
				return err
			}
			if len(payload.Projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects registered")
				return nil
			}
			rows := make([][]string, 0, len(payload.Projects))
			for _, p := range payload.Projects {
				next := p.NextScheduledAt
				if next == "" {
					next = "-"
				}
				rows = append(rows, []string{
					p.ID,
					p.Name,
					p.Timezone,
					strconv.Itoa(p.Priority),
					yesNo(p.IsPaused),
					next,
				})
			}
			out := renderTable(
				[]string{"ID", "Name", "Timezone", "Priority", "Paused", "Next Delivery"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newProjectPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <project-id>",
		Short: "Pause scheduling and cancel in-flight drafts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := ctx.apiPost("/projects/"+id+"/pause", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paused project %s\n", id)
			return nil
		},
	}
}

func newProjectResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <project-id>",
		Short: "Resume scheduling from the next cadence slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			var payload projectView
			if err := ctx.apiPost("/projects/"+id+"/resume", nil, &payload); err != nil {
				return err
			}
			next := payload.NextScheduledAt
			if next == "" {
				next = "unscheduled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed project %s; next delivery %s\n", id, next)
			return nil
		},
	}
}

func newProjectNoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "note <project-id> <text>",
		Short: "Record a planning note for the next episode",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			note := strings.TrimSpace(strings.Join(args[1:], " "))
			body := map[string]string{"note": note}
			if err := ctx.apiPost("/projects/"+id+"/notes", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded note for project %s\n", id)
			return nil
		},
	}
}

func newProjectNotesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <project-id>",
		Short: "List planning notes for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			var payload struct {
				Notes []noteView `json:"notes"`
			}
			if err := ctx.apiGet("/projects/"+id+"/notes", &payload); err != nil {
				return err
			}
			if len(payload.Notes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notes recorded")
				return nil
			}
			rows := make([][]string, 0, len(payload.Notes))
			for _, n := range payload.Notes {
				rows = append(rows, []string{
					strconv.FormatInt(n.ID, 10),
					n.Status,
					strconv.Itoa(n.RolloverCount),
					n.CreatedAt,
					n.Note,
				})
			}
			out := renderTable(
				[]string{"ID", "Status", "Rollovers", "Created", "Note"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
