package main

import (
	"os"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the analysis workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComponents(cmd, runOptions{api: true, workers: true})
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run only the HTTP API",
	Long:  "Runs the HTTP API without workers. Submitted tasks are processed by separate\n\"codescope worker\" processes sharing the database and a NATS queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComponents(cmd, runOptions{api: true})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the analysis workers and recovery sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComponents(cmd, runOptions{workers: true})
	},
}

func runComponents(cmd *cobra.Command, opts runOptions) error {
	cfg, log, err := bootstrap(os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if opts.api != opts.workers && cfg.Queue.Backend == "memory" {
		log.Warn("split deployment with the in-memory queue; work items do not cross processes")
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup()

	return app.serve(ctx, opts)
}
