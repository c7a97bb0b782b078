package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/phrazzld/codescope-api/internal/tui"
	"github.com/spf13/cobra"
)

var (
	tasksOwner    string
	tasksEmail    string
	tasksLimit    int
	tasksInterval time.Duration

	submitProfile      string
	submitModel        string
	submitAnalysisType string
	submitFormat       string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage analysis tasks",
	Long:  "Reads tasks straight from the configured database. The owner is taken from\n--owner, resolved from --email, or defaults to mcp.owner_id.",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's most recent tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, app *application, owner uuid.UUID) error {
			tasks, total, err := app.coordinator.List(ctx, owner, tasksLimit)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderTable(tasks))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d tasks\n", len(tasks), total)
			return nil
		})
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, app *application, owner uuid.UUID) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			t, err := app.coordinator.Get(ctx, owner, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderDetail(t))
			return nil
		})
	},
}

var tasksSubmitCmd = &cobra.Command{
	Use:   "submit <repository>...",
	Short: "Submit repositories for analysis",
	Long:  "Records a pending task. With the NATS queue a running worker picks it up at\nonce; with the in-memory queue the serve process recovers it on its next sweep.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, app *application, owner uuid.UUID) error {
			t, err := app.coordinator.Submit(ctx, owner, task.Input{
				RepositoryLocators: args,
				Options: task.Options{
					PromptProfile: submitProfile,
					Model:         submitModel,
					AnalysisType:  submitAnalysisType,
					OutputFormat:  submitFormat,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		})
	},
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, app *application, owner uuid.UUID) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			t, err := app.coordinator.Cancel(ctx, owner, id)
			if err != nil {
				return err
			}
			if t.State.IsTerminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "task %s is %s\n", t.ID, t.State)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for task %s\n", t.ID)
			}
			return nil
		})
	},
}

var tasksWatchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Open the live task dashboard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(ctx context.Context, app *application, owner uuid.UUID) error {
			model := tui.New(app.coordinator, owner, tasksInterval)
			if len(args) == 1 {
				id, err := parseTaskID(args[0])
				if err != nil {
					return err
				}
				model = tui.Follow(app.coordinator, owner, id, tasksInterval)
			}

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		})
	},
}

func init() {
	tasksCmd.PersistentFlags().StringVar(&tasksOwner, "owner", "", "owner user ID")
	tasksCmd.PersistentFlags().StringVar(&tasksEmail, "email", "", "resolve the owner from a registered email")

	tasksListCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "maximum number of tasks to list")
	tasksWatchCmd.Flags().DurationVar(&tasksInterval, "interval", 2*time.Second, "refresh interval")

	tasksSubmitCmd.Flags().StringVar(&submitProfile, "profile", "", "prompt profile")
	tasksSubmitCmd.Flags().StringVar(&submitModel, "model", "", "model override")
	tasksSubmitCmd.Flags().StringVar(&submitAnalysisType, "analysis-type", "", "fast or deep")
	tasksSubmitCmd.Flags().StringVar(&submitFormat, "format", "", "report format: markdown or json")

	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksSubmitCmd, tasksCancelCmd, tasksWatchCmd)
}

// withTasks builds the application against the persistent database, resolves
// the owner and runs fn. Logs go to stderr so they do not mix with output.
func withTasks(cmd *cobra.Command, fn func(ctx context.Context, app *application, owner uuid.UUID) error) error {
	cfg, log, err := bootstrap(os.Stderr)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		return errors.New("tasks commands need a persistent database; the memory driver is process local")
	}

	if cfg.Queue.Embedded {
		// The embedded server belongs to the serve process; pending tasks
		// reach it through the recovery sweep
		cfg.Queue.Backend = "memory"
		cfg.Queue.Embedded = false
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup()

	owner, err := resolveOwner(ctx, app, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, app, owner)
}

func resolveOwner(ctx context.Context, app *application, cfg *config.Config) (uuid.UUID, error) {
	switch {
	case tasksOwner != "":
		id, err := uuid.Parse(tasksOwner)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid owner ID %q: %w", tasksOwner, err)
		}
		return id, nil

	case tasksEmail != "":
		user, err := app.userStore.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(tasksEmail)))
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve owner %q: %w", tasksEmail, err)
		}
		return user.ID, nil

	case cfg.MCP.OwnerID != "":
		return uuid.Parse(cfg.MCP.OwnerID)
	}
	return uuid.Nil, errors.New("an owner is required: pass --owner or --email, or set mcp.owner_id")
}

func parseTaskID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid task ID %q", raw)
	}
	return id, nil
}
