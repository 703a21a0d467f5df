// Package cli provides the analyze command for dependency chain reports.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/engine"
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze dependency chains in the stored snapshot",
	Long: `Walk dependency chains over the stored snapshot, reporting every
chain of two or more tasks, cycles, and critical-path risks.`,
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
		analysis := eng.Chains()

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, analysis)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks stored. Run 'taskgantt fetch' first.")
			return nil
		}
		if len(analysis.Chains) == 0 {
			fmt.Println("No dependency chains found.")
			return nil
		}

		rows := make([][]string, 0, len(analysis.Chains))
		for _, chain := range analysis.Chains {
			rows = append(rows, []string{
				strings.Join(chain.IDs, " -> "),
				strconv.Itoa(len(chain.IDs)),
				formatYesNo(chain.Cycle),
			})
		}
		if err := writeTable(os.Stdout, []string{"CHAIN", "LENGTH", "CYCLE"}, rows); err != nil {
			return err
		}

		if len(analysis.CriticalPathRisks) == 0 {
			fmt.Println("\nNo critical path risks.")
			return nil
		}

		fmt.Println("\nCritical path risks:")
		riskRows := make([][]string, 0, len(analysis.CriticalPathRisks))
		for _, risk := range analysis.CriticalPathRisks {
			riskRows = append(riskRows, []string{
				strings.Join(risk.Chain, " -> "),
				strconv.Itoa(risk.Length),
				strconv.Itoa(risk.BlockedTasks),
				fmt.Sprintf("%dd", risk.TotalDuration),
				formatSeverity(risk.Severity),
			})
		}
		return writeTable(os.Stdout, []string{"CHAIN", "LENGTH", "BLOCKED", "DURATION", "SEVERITY"}, riskRows)
	},
}
