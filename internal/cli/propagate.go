// Package cli provides the propagate command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/engine"
	"github.com/tealeaf2/taskgantt/internal/propagator"
)

var propagateDryRun bool

func init() {
	rootCmd.AddCommand(propagateCmd)

	propagateCmd.Flags().BoolVar(&propagateDryRun, "dry-run", false, "report changes without storing them")
}

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Propagate statuses through the stored snapshot",
	Long: `Recompute every derivable status over the stored snapshot: composite
tasks roll up from their children, dependency-gated tasks follow their
dependencies. The updated snapshot is stored unless --dry-run is given.`,
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
		if len(tasks) == 0 {
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(os.Stdout, propagator.Result{Converged: true})
			}
			fmt.Println("No tasks stored. Run 'taskgantt fetch' first.")
			return nil
		}

		var eng *engine.Engine
		if propagateDryRun {
			eng = engine.New(GetConfig(), nil)
		} else {
			eng = engine.New(GetConfig(), db.NewEventRepository(database))
		}
		eng.Load(tasks)

		result, propErr := eng.Propagate(ctx)
		if propErr != nil && !errors.Is(propErr, propagator.ErrPropagationDidNotConverge) {
			return propErr
		}
		if propErr != nil {
			fmt.Fprintln(os.Stderr, "Warning: propagation did not converge; keeping the last computed state.")
		}

		if !propagateDryRun {
			if err := db.NewTaskRepository(database).ReplaceAll(ctx, eng.Tasks()); err != nil {
				return fmt.Errorf("failed to store snapshot: %w", err)
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, result)
		}

		if !result.Changed {
			fmt.Println("No status changes.")
			return nil
		}

		rows := make([][]string, 0, len(result.Changes))
		for _, change := range result.Changes {
			rows = append(rows, []string{
				change.TaskID,
				string(change.From),
				string(change.To),
				change.Source,
			})
		}
		if err := writeTable(os.Stdout, []string{"TASK", "FROM", "TO", "SOURCE"}, rows); err != nil {
			return err
		}

		fmt.Printf("\n%d status changes in %d passes.\n", len(result.Changes), result.Passes)
		if propagateDryRun {
			fmt.Println("Dry run: snapshot not stored.")
		}
		return nil
	},
}
