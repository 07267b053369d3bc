// Package workflow implements the durable, step-addressable task-execution
// state machine (component I) on top of Temporal: create-run, prepare-sandbox,
// execute-task, complete-run, backup-session, run in strict order with
// Temporal's own replay memoization standing in for manual step caching.
package workflow

// TaskParams is the input to TaskWorkflow.
type TaskParams struct {
	SessionID                 string `json:"sessionId"`
	SandboxID                 string `json:"sandboxId"`
	Task                      string `json:"task"`
	Model                     string `json:"model"`
	RunID                     string `json:"runId"`
	Title                     string `json:"title"`
	RepositoryURL             string `json:"repositoryUrl,omitempty"`
	Branch                    string `json:"branch,omitempty"`
	ProxyToken                string `json:"proxyToken"`
	ProxyBaseURL              string `json:"proxyBaseUrl"`
	ExistingOpencodeSessionID string `json:"existingOpencodeSessionId,omitempty"`
}

// TaskResult is the output of TaskWorkflow.
type TaskResult struct {
	Success           bool   `json:"success"`
	Output            string `json:"output,omitempty"`
	Error             string `json:"error,omitempty"`
	Title             string `json:"title,omitempty"`
	OpencodeSessionID string `json:"opencodeSessionId,omitempty"`
	WorkspacePath     string `json:"workspacePath,omitempty"`
	Tokens            int64  `json:"tokens,omitempty"`
}

// prepareResult is the internal return value of the prepare-sandbox
// activity.
type prepareResult struct {
	WorkspacePath   string `json:"workspacePath"`
	RestoredBackup  bool   `json:"restoredBackup"`
	ClonedRepo      bool   `json:"clonedRepo"`
	ConfiguredProxy bool   `json:"configuredProxy"`
}

// executeResult is the internal return value of the execute-task activity.
type executeResult struct {
	Success           bool   `json:"success"`
	Output            string `json:"output"`
	Error             string `json:"error,omitempty"`
	OpencodeSessionID string `json:"opencodeSessionId"`
	Tokens            int64  `json:"tokens"`
	// TurnID is a sortable per-prompt correlation id, distinct from RunID.
	// Each run submits exactly one agent turn (execute-task is never
	// retried); TurnID lets log lines for that turn be grouped and ordered
	// independently of the run that contains it.
	TurnID string `json:"turnId,omitempty"`
}
