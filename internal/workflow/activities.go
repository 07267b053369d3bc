package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/sandbox-gateway/internal/agentio"
	"github.com/opencode-ai/sandbox-gateway/internal/backup"
	"github.com/opencode-ai/sandbox-gateway/internal/eventbus"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/runstore"
	"github.com/opencode-ai/sandbox-gateway/internal/sandbox"
	"github.com/opencode-ai/sandbox-gateway/internal/sessionstore"
	"github.com/opencode-ai/sandbox-gateway/internal/storekeys"
	"github.com/opencode-ai/sandbox-gateway/internal/telemetry"
)

// defaultWorkspace is where a sandbox keeps its checkout when no repository
// is requested.
const defaultWorkspace = "/workspace"

// agentStateDir mirrors the coding agent's on-disk storage directory
// inside the sandbox, relative to defaultWorkspace.
const agentStateDir = ".local/share/opencode"

// Activities bundles every dependency the five workflow steps need. A
// fresh sandbox.Client is constructed per activity invocation (never
// carried across step boundaries) since remote stubs aren't serializable
// workflow state.
type Activities struct {
	Runs             *runstore.Store
	Sessions         *sessionstore.Store
	Objects          objectstore.Store
	SandboxBaseURL   string
	AgentBaseURLTmpl string
	AgentModel       agentio.Model
}

func (a *Activities) newSandboxClient(sandboxID string) *sandbox.Client {
	return sandbox.New(a.SandboxBaseURL, sandboxID)
}

func (a *Activities) agentBaseURL(sandboxID string) string {
	return strings.ReplaceAll(a.AgentBaseURLTmpl, "{sandboxId}", sandboxID)
}

// CreateRun is step 1.
func (a *Activities) CreateRun(ctx context.Context, params TaskParams) error {
	run := &runstore.Run{
		RunID:      params.RunID,
		SessionID:  params.SessionID,
		WorkflowID: params.RunID,
		Status:     runstore.StatusStarted,
		Task:       params.Task,
		Title:      params.Title,
		Model:      params.Model,
		StartedAt:  time.Now().UnixMilli(),
	}
	if err := a.Runs.Put(ctx, run); err != nil {
		return err
	}
	eventbus.Publish(eventbus.Event{Type: eventbus.RunStarted, Data: run})
	return nil
}

// PrepareSandbox is step 2.
func (a *Activities) PrepareSandbox(ctx context.Context, params TaskParams) (prepareResult, error) {
	client := a.newSandboxClient(params.SandboxID)

	repoDir := repoDirFromURL(params.RepositoryURL)
	workspacePath := defaultWorkspace
	if repoDir != "" {
		workspacePath = defaultWorkspace + "/" + repoDir
	}

	// A prefix listing of the exact backup key tells whether a backup exists
	// without downloading it.
	listed, err := a.Objects.List(ctx, storekeys.BackupKey(params.SessionID), 1, "")
	hasBackup := err == nil && len(listed.Keys) > 0
	outcome, err := client.EnsureSandboxReady(ctx, sandbox.PrepareParams{
		WorkDir:          defaultWorkspace,
		ProxyBaseURL:     params.ProxyBaseURL,
		ProxyToken:       params.ProxyToken,
		RepositoryURL:    params.RepositoryURL,
		RepositoryBranch: params.Branch,
		RepoDir:          repoDir,
		HasBackup:        hasBackup,
		RestoreFunc: func(ctx context.Context) error {
			return backup.Restore(ctx, client, a.Objects, params.SessionID, defaultWorkspace)
		},
	})
	if err != nil {
		return prepareResult{}, err
	}

	return prepareResult{
		WorkspacePath:   workspacePath,
		RestoredBackup:  outcome.RestoredBackup,
		ClonedRepo:      outcome.ClonedRepo,
		ConfiguredProxy: outcome.ConfiguredProxy,
	}, nil
}

// ExecuteTask is step 3. It never returns an error for agent-side
// failures; only infrastructure failures propagate, and the workflow
// layer folds even those into a failed executeResult.
func (a *Activities) ExecuteTask(ctx context.Context, params TaskParams, prepared prepareResult) (executeResult, error) {
	client := agentio.New(a.agentBaseURL(params.SandboxID), a.AgentModel)

	sessionID, err := client.EnsureSession(ctx, params.ExistingOpencodeSessionID, prepared.WorkspacePath, params.Title)
	if err != nil {
		return executeResult{
			Success:           false,
			Error:             err.Error(),
			OpencodeSessionID: fallback(params.ExistingOpencodeSessionID),
		}, nil
	}

	result, err := client.Prompt(ctx, sessionID, params.Task)
	if err != nil {
		return executeResult{Success: false, Error: err.Error(), OpencodeSessionID: sessionID}, nil
	}
	logging.Debug().Str("runId", params.RunID).Str("turnId", result.TurnID).Msg("agent turn completed")
	if result.IsError {
		return executeResult{Success: false, Output: result.Text, Error: result.Error, OpencodeSessionID: sessionID, TurnID: result.TurnID}, nil
	}
	return executeResult{Success: true, Output: result.Text, OpencodeSessionID: sessionID, TurnID: result.TurnID}, nil
}

func fallback(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

// CompleteRun is step 4. It also emits the workflow-level wide event,
// since this is the first activity holding the run's final outcome.
func (a *Activities) CompleteRun(ctx context.Context, params TaskParams, result TaskResult) error {
	event := telemetry.NewWorkflowEvent(ctx, params.RunID, params.RunID, params.SessionID)
	defer event.Emit()

	if err := a.Runs.CompleteRun(ctx, params.RunID, runstore.CompleteParams{
		Success: result.Success,
		Output:  result.Output,
		Error:   result.Error,
		Title:   result.Title,
	}); err != nil {
		event.Fail("complete-run", err)
		return err
	}
	if result.Success {
		eventbus.Publish(eventbus.Event{Type: eventbus.RunCompleted, Data: params.RunID})
	} else {
		event.Fail("execute-task", fmt.Errorf("%s", result.Error))
		eventbus.Publish(eventbus.Event{Type: eventbus.RunFailed, Data: params.RunID})
	}

	sess, err := a.Sessions.Get(ctx, params.SessionID)
	if err != nil {
		event.Fail("complete-run", err)
		return err
	}
	if sess == nil {
		logging.Warn().Str("sessionId", params.SessionID).Msg("session vanished before run completion; skipping update")
		return nil
	}
	sess.OpencodeSessionID = result.OpencodeSessionID
	sess.WorkspacePath = result.WorkspacePath
	sess.LastActivity = time.Now().UnixMilli()
	if err := a.Sessions.Put(ctx, sess); err != nil {
		event.Fail("complete-run", err)
		return err
	}
	return nil
}

// BackupSession is step 5. All errors are swallowed; backup is advisory
// and never causal to run success.
func (a *Activities) BackupSession(ctx context.Context, params TaskParams, result TaskResult) error {
	client := a.newSandboxClient(params.SandboxID)
	workDir := defaultWorkspace
	if err := backup.Take(ctx, client, a.Objects, params.SessionID, workDir, agentStateDir); err != nil {
		logging.Warn().Err(err).Str("sessionId", params.SessionID).Msg("session backup failed")
		return nil
	}
	eventbus.Publish(eventbus.Event{Type: eventbus.BackupTaken, Data: params.SessionID})
	return nil
}

func repoDirFromURL(url string) string {
	if url == "" {
		return ""
	}
	trimmed := strings.TrimSuffix(url, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	parts := strings.Split(trimmed, "/")
	name := parts[len(parts)-1]
	if name == "" {
		return fmt.Sprintf("repo-%d", time.Now().UnixNano())
	}
	return name
}
