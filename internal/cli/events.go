// Package cli provides the events command for the status-change log.
package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/models"
)

var (
	eventsType   string
	eventsEntity string
	eventsLimit  int
	eventsCursor string
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (task.status_changed, snapshot.replaced, ...)")
	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", "filter by entity id")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events per page")
	eventsCmd.Flags().StringVar(&eventsCursor, "cursor", "", "resume from a previous page's cursor")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded events",
	Long: `List the append-only event log: status changes, snapshot
replacements, and propagation runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		query := db.EventQuery{
			Cursor: eventsCursor,
			Limit:  eventsLimit,
		}
		if eventsType != "" {
			eventType := models.EventType(eventsType)
			query.Type = &eventType
		}
		if eventsEntity != "" {
			query.EntityID = &eventsEntity
		}

		page, err := db.NewEventRepository(database).Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, EventPage{
				Events:     page.Events,
				NextCursor: page.NextCursor,
			})
		}

		if len(page.Events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "TIME\tTYPE\tENTITY\tPAYLOAD")
		for _, event := range page.Events {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\n",
				event.Timestamp.Format(time.RFC3339),
				event.Type,
				event.EntityID,
				orDash(string(event.Payload)),
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		if page.NextCursor != "" {
			fmt.Printf("\nMore events available: --cursor %s\n", page.NextCursor)
		}
		return nil
	},
}

// EventPage is the payload returned by `taskgantt events --json`.
type EventPage struct {
	Events     []*models.Event `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
}
