// Package cli provides the serve command for the dashboard API.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tealeaf2/taskgantt/internal/db"
	"github.com/tealeaf2/taskgantt/internal/engine"
	"github.com/tealeaf2/taskgantt/internal/server"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Load the stored snapshot into the engine and serve the dashboard
API. Edits made through the API are propagated, persisted, and recorded
in the event log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		taskRepo := db.NewTaskRepository(database)
		eventRepo := db.NewEventRepository(database)

		tasks, err := taskRepo.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list stored tasks: %w", err)
		}

		eng := engine.New(cfg, eventRepo)
		eng.Load(tasks)

		srv := server.New(server.Options{
			Engine: eng,
			Tasks:  taskRepo,
			Events: eventRepo,
		})

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Listen(addr); err != nil {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Shutting down...")
			if err := srv.Shutdown(); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}
		return nil
	},
}
