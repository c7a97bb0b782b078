package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/generation"
	"github.com/phrazzld/codescope-api/internal/report"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/phrazzld/codescope-api/internal/task"
)

// Implementation name reported to MCP clients
const serverName = "codescope"

// TaskService is the subset of the task coordinator the tools call.
type TaskService interface {
	Submit(ctx context.Context, ownerID uuid.UUID, input task.Input) (*task.Task, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*task.Task, int, error)
	Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
}

// ReportReader fetches a stored report for its owner.
type ReportReader interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.Report, error)
}

// ProfileLister names the available prompt profiles.
type ProfileLister interface {
	Names() []string
}

// Deps are the services behind the tools. Models and Profiles may be nil,
// in which case list_models and list_profiles are not registered.
type Deps struct {
	Tasks    TaskService
	Reports  ReportReader
	Models   generation.ModelLister
	Profiles ProfileLister
	Logger   *slog.Logger
}

// Server is an MCP server acting on behalf of a single owner.
type Server struct {
	deps   Deps
	owner  uuid.UUID
	logger *slog.Logger
	mcp    *mcp.Server
}

// New creates a Server whose tools act as owner.
func New(deps Deps, owner uuid.UUID, version string) (*Server, error) {
	if deps.Tasks == nil || deps.Reports == nil {
		return nil, errors.New("mcpserver: task and report services are required")
	}
	if owner == uuid.Nil {
		return nil, errors.New("mcpserver: owner ID is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		owner:  owner,
		logger: logger.With("component", "mcp_server", "owner_id", owner),
		mcp:    mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server, for connecting custom transports.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves over stdin and stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "submit_analysis",
		Description: "Queue a code quality analysis of one or more repositories. Returns immediately with a task ID; poll get_task_status for progress.",
	}, s.submitAnalysis)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_task_status",
		Description: "Get the state, progress (0, 40, 90, 100), attempts and error summary of a task.",
	}, s.getTaskStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List submitted tasks newest first, with the total count.",
	}, s.listTasks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cancel_task",
		Description: "Cancel a task. Pending tasks cancel at once; running tasks stop at their next checkpoint. Cancelling a finished task does nothing.",
	}, s.cancelTask)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_report",
		Description: "Fetch the rendered report of a completed task by its result_reference.",
	}, s.getReport)

	if s.deps.Profiles != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "list_profiles",
			Description: "List the prompt profiles accepted by submit_analysis.",
		}, s.listProfiles)
	}

	if s.deps.Models != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "list_models",
			Description: "List the models the configured model provider can serve.",
		}, s.listModels)
	}
}

func (s *Server) submitAnalysis(ctx context.Context, _ *mcp.CallToolRequest, args SubmitAnalysisArgs) (*mcp.CallToolResult, SubmitAnalysisOutput, error) {
	t, err := s.deps.Tasks.Submit(ctx, s.owner, task.Input{
		RepositoryLocators: args.RepositoryLocators,
		Options: task.Options{
			PromptProfile: args.PromptProfile,
			Model:         args.Model,
			Temperature:   args.Temperature,
			AnalysisType:  args.AnalysisType,
			OutputFormat:  args.OutputFormat,
		},
	})
	if err != nil {
		return nil, SubmitAnalysisOutput{}, s.toolError(ctx, err)
	}
	s.logger.InfoContext(ctx, "task submitted via MCP", "task_id", t.ID)
	return nil, SubmitAnalysisOutput{TaskID: t.ID.String(), State: string(t.State)}, nil
}

func (s *Server) getTaskStatus(ctx context.Context, _ *mcp.CallToolRequest, args TaskIDArgs) (*mcp.CallToolResult, TaskStatus, error) {
	id, err := parseID("task_id", args.TaskID)
	if err != nil {
		return nil, TaskStatus{}, err
	}
	t, err := s.deps.Tasks.Get(ctx, s.owner, id)
	if err != nil {
		return nil, TaskStatus{}, s.toolError(ctx, err)
	}
	return nil, toStatus(t), nil
}

func (s *Server) listTasks(ctx context.Context, _ *mcp.CallToolRequest, args ListTasksArgs) (*mcp.CallToolResult, ListTasksOutput, error) {
	if args.Limit < 0 {
		return nil, ListTasksOutput{}, errors.New("limit must not be negative")
	}
	tasks, total, err := s.deps.Tasks.List(ctx, s.owner, args.Limit)
	if err != nil {
		return nil, ListTasksOutput{}, s.toolError(ctx, err)
	}
	out := ListTasksOutput{Tasks: make([]TaskStatus, len(tasks)), Total: total}
	for i, t := range tasks {
		out.Tasks[i] = toStatus(t)
	}
	return nil, out, nil
}

func (s *Server) cancelTask(ctx context.Context, _ *mcp.CallToolRequest, args TaskIDArgs) (*mcp.CallToolResult, TaskStatus, error) {
	id, err := parseID("task_id", args.TaskID)
	if err != nil {
		return nil, TaskStatus{}, err
	}
	t, err := s.deps.Tasks.Cancel(ctx, s.owner, id)
	if err != nil {
		return nil, TaskStatus{}, s.toolError(ctx, err)
	}
	return nil, toStatus(t), nil
}

func (s *Server) getReport(ctx context.Context, _ *mcp.CallToolRequest, args GetReportArgs) (*mcp.CallToolResult, GetReportOutput, error) {
	id, err := parseID("report_id", args.ReportID)
	if err != nil {
		return nil, GetReportOutput{}, err
	}
	rep, err := s.deps.Reports.Get(ctx, s.owner, id)
	if err != nil {
		return nil, GetReportOutput{}, s.toolError(ctx, err)
	}

	stored, err := report.ParseFormat(rep.Format, report.FormatMarkdown)
	if err != nil {
		stored = report.FormatMarkdown
	}
	format, err := report.ParseFormat(args.Format, stored)
	if err != nil {
		return nil, GetReportOutput{}, err
	}
	body, err := report.Render(rep, format)
	if err != nil {
		return nil, GetReportOutput{}, s.toolError(ctx, err)
	}

	return nil, GetReportOutput{
		ReportID:     rep.ID.String(),
		Repository:   rep.Repository,
		Format:       string(format),
		OverallScore: rep.Overall,
		Content:      string(body),
	}, nil
}

func (s *Server) listProfiles(ctx context.Context, _ *mcp.CallToolRequest, _ ListProfilesArgs) (*mcp.CallToolResult, ListProfilesOutput, error) {
	return nil, ListProfilesOutput{Profiles: s.deps.Profiles.Names()}, nil
}

func (s *Server) listModels(ctx context.Context, _ *mcp.CallToolRequest, _ ListModelsArgs) (*mcp.CallToolResult, ListModelsOutput, error) {
	models, err := s.deps.Models.ListModels(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list models", "error", err)
		return nil, ListModelsOutput{}, errors.New("model provider unavailable")
	}
	if models == nil {
		models = []generation.ModelInfo{}
	}
	return nil, ListModelsOutput{Models: models}, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a UUID", field)
	}
	return id, nil
}

// toolError reduces err to a message safe to return to the client.
func (s *Server) toolError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		return err
	case errors.Is(err, task.ErrNotFound):
		return task.ErrNotFound
	case errors.Is(err, store.ErrReportNotFound):
		return errors.New("report not found")
	default:
		s.logger.ErrorContext(ctx, "tool call failed", "error", err)
		return errors.New("internal error")
	}
}
