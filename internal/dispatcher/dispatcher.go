// Package dispatcher is the tool dispatch surface: an MCP server exposing
// run_task, get_result and list_runs to IDE-embedded clients.
package dispatcher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/runstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
	"github.com/opencode-ai/sandbox-gateway/internal/telemetry"
	"github.com/opencode-ai/sandbox-gateway/internal/token"
	"github.com/opencode-ai/sandbox-gateway/internal/workflow"
)

// maxTaskLen bounds the task text tool input.
const maxTaskLen = 32 * 1024

// workflowStarter is the subset of *workflow.Starter the dispatcher needs,
// narrowed so tests can substitute a fake.
type workflowStarter interface {
	Start(ctx context.Context, params workflow.TaskParams) (string, error)
}

// Dispatcher wires tool calls to session/run storage, proxy token minting
// and the workflow starter.
type Dispatcher struct {
	Sessions     *sessionstore.Store
	Runs         *runstore.Store
	Starter      workflowStarter
	ProxySecret  string
	BaseURL      string
	DefaultModel string
}

// NewServer builds an MCP server with the three tools registered.
func NewServer(d *Dispatcher) *server.MCPServer {
	s := server.NewMCPServer("sandbox-gateway", "1.0.0", server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool("run_task",
		mcp.WithDescription("Run a coding task inside a sandbox, creating a session if needed"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural-language task description")),
		mcp.WithString("sessionId", mcp.Description("Existing session id; omit to create a new session")),
		mcp.WithString("repository", mcp.Description("https://github.com/... repository to clone")),
		mcp.WithString("branch", mcp.Description("Branch to check out")),
		mcp.WithString("model", mcp.Description("Model id override")),
		mcp.WithString("title", mcp.Description("Short label for the run")),
	), d.runTask)

	s.AddTool(mcp.NewTool("get_result",
		mcp.WithDescription("Fetch the status and result of a previously started run"),
		mcp.WithString("runId", mcp.Required()),
	), d.getResult)

	s.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List runs, optionally filtered by session or status"),
		mcp.WithString("sessionId"),
		mcp.WithString("status", mcp.Description("started, running, completed or failed")),
		mcp.WithNumber("limit", mcp.Description("1-100, default 10")),
		mcp.WithNumber("before", mcp.Description("Only runs started before this unix-ms timestamp")),
	), d.listRuns)

	return s
}

// toolError builds the {code, message} error envelope every tool handler
// returns on failure.
func toolError(code, message string) *mcp.CallToolResult {
	result, err := toolResultJSON(map[string]any{"code": code, "message": message})
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	result.IsError = true
	return result
}

// toolResultJSON serializes payload into the single text content block
// every tool output is required to carry.
func toolResultJSON(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (d *Dispatcher) runTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event := telemetry.NewToolEvent("run_task")
	defer event.Emit()

	args := req.GetArguments()
	task, _ := args["task"].(string)
	if task == "" || len(task) > maxTaskLen {
		return toolError("VALIDATION_ERROR", "task is required, must be non-empty and at most 32768 bytes"), nil
	}
	repository, _ := args["repository"].(string)
	if repository != "" && !strings.HasPrefix(repository, "https://github.com/") {
		return toolError("VALIDATION_ERROR", "repository must start with https://github.com/"), nil
	}
	branch, _ := args["branch"].(string)
	modelOverride, _ := args["model"].(string)
	title, _ := args["title"].(string)
	sessionID, _ := args["sessionId"].(string)

	sess, err := d.resolveOrCreateSession(ctx, sessionID, repository, event)
	if err != nil {
		event.Fail(err)
		if tagged, ok := err.(*errs.Error); ok && errs.IsNotFound(tagged) {
			return toolError(tagged.Code, tagged.Message), nil
		}
		return nil, err
	}

	model := modelOverride
	if model == "" {
		model = sess.Config.DefaultModel
	}

	runID, err := runstore.GenerateID()
	if err != nil {
		event.Fail(err)
		return nil, err
	}
	proxyToken, err := token.Create(token.CreateParams{
		Secret:    d.ProxySecret,
		SandboxID: sess.SandboxID,
		SessionID: sess.SessionID,
		ExpiresIn: "2h",
	})
	if err != nil {
		event.Fail(err)
		return nil, err
	}

	params := workflow.TaskParams{
		SessionID:                 sess.SessionID,
		SandboxID:                 sess.SandboxID,
		Task:                      task,
		Model:                     model,
		RunID:                     runID,
		Title:                     title,
		RepositoryURL:             repository,
		Branch:                    branch,
		ProxyToken:                proxyToken,
		ProxyBaseURL:              strings.TrimRight(d.BaseURL, "/") + "/proxy",
		ExistingOpencodeSessionID: sess.OpencodeSessionID,
	}
	if _, err := d.Starter.Start(ctx, params); err != nil {
		event.Fail(err)
		return nil, err
	}

	sess.LastActivity = time.Now().UnixMilli()
	if err := d.Sessions.Put(ctx, sess); err != nil {
		event.Fail(err)
		return nil, err
	}

	event.Succeed()
	return toolResultJSON(map[string]any{
		"runId":     runID,
		"sessionId": sess.SessionID,
		"status":    "started",
		"webUiUrl":  sess.WebUIURL,
	})
}

func (d *Dispatcher) resolveOrCreateSession(ctx context.Context, sessionID, repository string, event *telemetry.ToolEvent) (*sessionstore.Session, error) {
	if sessionID != "" {
		sess, err := d.Sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, errs.SessionNotFound(sessionID)
		}
		if repository != "" {
			sessionstore.AddClonedRepo(sess, repository)
		}
		return sess, nil
	}

	id, err := sessionstore.GenerateID()
	if err != nil {
		return nil, err
	}
	sess := &sessionstore.Session{
		SessionID:     id,
		SandboxID:     id,
		CreatedAt:     time.Now().UnixMilli(),
		LastActivity:  time.Now().UnixMilli(),
		Status:        sessionstore.StatusActive,
		WorkspacePath: "/workspace",
		WebUIURL:      strings.TrimRight(d.BaseURL, "/") + "/session/" + id + "/",
		Config:        sessionstore.SessionConfig{DefaultModel: d.DefaultModel},
	}
	if repository != "" {
		sess.ClonedRepos = []string{repository}
	}
	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (d *Dispatcher) getResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event := telemetry.NewToolEvent("get_result")
	defer event.Emit()

	runID, _ := req.GetArguments()["runId"].(string)
	if runID == "" {
		return toolError("VALIDATION_ERROR", "runId is required"), nil
	}

	run, err := d.Runs.Get(ctx, runID)
	if err != nil {
		event.Fail(err)
		return nil, err
	}
	if run == nil {
		notFound := errs.RunNotFound(runID)
		return toolError(notFound.Code, notFound.Message), nil
	}

	var webUIURL string
	if sess, _ := d.Sessions.Get(ctx, run.SessionID); sess != nil {
		webUIURL = sess.WebUIURL
	}

	event.Succeed()
	return toolResultJSON(map[string]any{
		"runId":     run.RunID,
		"sessionId": run.SessionID,
		"status":    run.Status,
		"title":     run.Title,
		"result":    run.Result,
		"webUiUrl":  webUIURL,
	})
}

func (d *Dispatcher) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event := telemetry.NewToolEvent("list_runs")
	defer event.Emit()

	args := req.GetArguments()
	sessionID, _ := args["sessionId"].(string)
	status, _ := args["status"].(string)
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	if limit > 100 {
		limit = 100
	}
	var before int64
	if v, ok := args["before"].(float64); ok {
		before = int64(v)
	}

	result, err := d.Runs.ListRuns(ctx, runstore.ListFilter{
		SessionID: sessionID,
		Status:    runstore.Status(status),
		Before:    before,
		Limit:     limit,
	})
	if err != nil {
		event.Fail(err)
		return nil, err
	}

	event.Succeed()
	return toolResultJSON(map[string]any{
		"runs":    result.Entries,
		"hasMore": result.Total > len(result.Entries),
	})
}
