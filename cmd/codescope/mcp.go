package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/mcpserver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	mcpOwner     string
	mcpNoWorkers bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis tools over MCP on stdio",
	Long: "Runs a Model Context Protocol server on stdin/stdout. Tasks are submitted on\n" +
		"behalf of a single owner. Unless --no-workers is set the workers run in the\n" +
		"same process. Logs go to stderr.",
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpOwner, "owner", "", "owner user ID for submitted tasks (defaults to mcp.owner_id)")
	mcpCmd.Flags().BoolVar(&mcpNoWorkers, "no-workers", false, "do not start in-process workers")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap(os.Stderr)
	if err != nil {
		return err
	}

	rawOwner := mcpOwner
	if rawOwner == "" {
		rawOwner = cfg.MCP.OwnerID
	}
	if rawOwner == "" {
		return errors.New("an owner is required: pass --owner or set mcp.owner_id")
	}
	owner, err := uuid.Parse(rawOwner)
	if err != nil {
		return fmt.Errorf("invalid owner ID %q: %w", rawOwner, err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup()

	server, err := mcpserver.New(mcpserver.Deps{
		Tasks:    app.coordinator,
		Reports:  app.reports,
		Models:   app.generator,
		Profiles: app.catalog,
		Logger:   log,
	}, owner, Version)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if !mcpNoWorkers {
		g.Go(func() error {
			return app.serve(gctx, runOptions{workers: true})
		})
	}
	g.Go(func() error {
		// The client closing stdin ends the session and the process
		defer stop()
		if err := server.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP session ended: %w", err)
		}
		return nil
	})
	return g.Wait()
}
