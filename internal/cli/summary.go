// Package cli provides the summary command.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/engine"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize project risk",
	Long: `Aggregate the stored snapshot into a project risk summary: task
counts, high-risk tasks, critical-path risks, and escalation
recommendations.`,
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
		summary := eng.Summary()

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, summary)
		}

		if summary.TotalTasks == 0 {
			fmt.Println("No tasks stored. Run 'taskgantt fetch' first.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Tasks:\t%d\n", summary.TotalTasks)
		fmt.Fprintf(writer, "High risk:\t%d\n", summary.HighRiskTasks)
		fmt.Fprintf(writer, "Overall risk:\t%s\n", formatSeverity(summary.OverallRiskLevel))
		if err := writer.Flush(); err != nil {
			return err
		}

		if len(summary.CriticalPathRisks) > 0 {
			fmt.Println("\nCritical path risks:")
			rows := make([][]string, 0, len(summary.CriticalPathRisks))
			for _, risk := range summary.CriticalPathRisks {
				rows = append(rows, []string{
					strings.Join(risk.Chain, " -> "),
					strconv.Itoa(risk.Length),
					strconv.Itoa(risk.BlockedTasks),
					formatSeverity(risk.Severity),
				})
			}
			if err := writeTable(os.Stdout, []string{"CHAIN", "LENGTH", "BLOCKED", "SEVERITY"}, rows); err != nil {
				return err
			}
		}

		if len(summary.Recommendations) > 0 {
			fmt.Println("\nRecommendations:")
			rows := make([][]string, 0, len(summary.Recommendations))
			for _, rec := range summary.Recommendations {
				rows = append(rows, []string{
					rec.Action,
					rec.TaskID,
					formatSeverity(rec.Priority),
					orDash(rec.Assignee),
					rec.Reason,
				})
			}
			if err := writeTable(os.Stdout, []string{"ACTION", "TASK", "PRIORITY", "ASSIGNEE", "REASON"}, rows); err != nil {
				return err
			}
		}
		return nil
	},
}
