// Package cli provides commands for inspecting stored tasks.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/blocker"
	"github.com/tealeaf2/taskgantt/internal/engine"
	"github.com/tealeaf2/taskgantt/internal/models"
	"github.com/tealeaf2/taskgantt/internal/risk"
)

var tasksListStatus string

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)

	tasksListCmd.Flags().StringVar(&tasksListStatus, "status", "", "filter by status (todo, in-progress, blocked, done)")
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the stored task snapshot",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		tasks, err := loadStoredTasks(ctx, database)
		if err != nil {
			return err
		}

		if tasksListStatus != "" {
			status := models.Status(strings.ToLower(strings.TrimSpace(tasksListStatus)))
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", tasksListStatus)
			}
			filtered := tasks[:0]
			for _, task := range tasks {
				if task.Status == status {
					filtered = append(filtered, task)
				}
			}
			tasks = filtered
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks stored. Run 'taskgantt fetch' first.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tNAME\tSTATUS\tPRIORITY\tOWNER\tDUE\tDEPS")
		for _, task := range tasks {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				task.ID,
				orDash(task.Name),
				formatTaskStatus(task.Status),
				orDash(string(task.Priority)),
				orDash(task.Owner),
				formatDueDate(task.DueDate),
				len(task.Depends),
			)
		}
		return writer.Flush()
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task with its risk and blockers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		tasks, err := loadStoredTasks(ctx, database)
		if err != nil {
			return err
		}

		eng := engine.New(GetConfig(), nil)
		eng.Load(tasks)

		task, err := eng.Task(args[0])
		if err != nil {
			return fmt.Errorf("task '%s' not found", args[0])
		}
		assessment, err := eng.Risk(task.ID)
		if err != nil {
			return err
		}
		blockers, err := eng.Blockers(task.ID)
		if err != nil {
			return err
		}
		recommendations, err := eng.Recommendations(task.ID)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, TaskDetail{
				Task:            task,
				Risk:            assessment,
				Blockers:        blockers,
				Recommendations: recommendations,
			})
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "ID:\t%s\n", task.ID)
		fmt.Fprintf(writer, "Name:\t%s\n", orDash(task.Name))
		fmt.Fprintf(writer, "Status:\t%s\n", formatTaskStatus(task.Status))
		fmt.Fprintf(writer, "Priority:\t%s\n", orDash(string(task.Priority)))
		fmt.Fprintf(writer, "Owner:\t%s\n", orDash(task.Owner))
		fmt.Fprintf(writer, "Due:\t%s\n", formatDueDate(task.DueDate))
		fmt.Fprintf(writer, "Duration:\t%d days\n", task.Duration)
		fmt.Fprintf(writer, "Depends:\t%s\n", orDash(strings.Join(task.Depends, ", ")))
		if task.ParentID != "" {
			fmt.Fprintf(writer, "Parent:\t%s\n", task.ParentID)
		}
		if len(task.Tags) > 0 {
			fmt.Fprintf(writer, "Tags:\t%s\n", strings.Join(task.Tags, ", "))
		}
		if task.URL != "" {
			fmt.Fprintf(writer, "URL:\t%s\n", task.URL)
		}
		fmt.Fprintf(writer, "Risk score:\t%d/100\n", assessment.Score)
		if err := writer.Flush(); err != nil {
			return err
		}

		if len(assessment.Factors) > 0 {
			fmt.Println("\nRisk factors:")
			rows := make([][]string, 0, len(assessment.Factors))
			for _, factor := range assessment.Factors {
				rows = append(rows, []string{
					factor.Name,
					fmt.Sprintf("%.2f", factor.Value),
					fmt.Sprintf("%.2f", factor.Weight),
					orDash(factor.Description),
				})
			}
			if err := writeTable(os.Stdout, []string{"FACTOR", "VALUE", "WEIGHT", "DETAIL"}, rows); err != nil {
				return err
			}
		}

		if len(blockers) > 0 {
			fmt.Println("\nBlockers:")
			rows := make([][]string, 0, len(blockers))
			for _, b := range blockers {
				rows = append(rows, []string{
					b.Type,
					b.ID,
					orDash(b.Name),
					orDash(string(b.Status)),
					strconv.FormatFloat(b.AgeDays, 'f', 1, 64),
					formatSeverity(b.Severity),
				})
			}
			if err := writeTable(os.Stdout, []string{"TYPE", "ID", "NAME", "STATUS", "AGE", "SEVERITY"}, rows); err != nil {
				return err
			}
		}

		if len(recommendations) > 0 {
			fmt.Println("\nRecommendations:")
			rows := make([][]string, 0, len(recommendations))
			for _, rec := range recommendations {
				rows = append(rows, []string{
					rec.Action,
					formatSeverity(rec.Priority),
					orDash(rec.Assignee),
					rec.Reason,
				})
			}
			if err := writeTable(os.Stdout, []string{"ACTION", "PRIORITY", "ASSIGNEE", "REASON"}, rows); err != nil {
				return err
			}
		}
		return nil
	},
}

// TaskDetail is the payload returned by `taskgantt tasks show --json`.
type TaskDetail struct {
	Task            models.Task              `json:"task"`
	Risk            risk.Assessment          `json:"risk"`
	Blockers        []blocker.Blocker        `json:"blockers"`
	Recommendations []blocker.Recommendation `json:"recommendations"`
}

func formatDueDate(due *time.Time) string {
	if due == nil {
		return "-"
	}
	return due.Format("2006-01-02")
}
