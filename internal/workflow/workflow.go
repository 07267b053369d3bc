package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the default Temporal task queue this workflow and its
// activities are registered against.
const TaskQueue = "sandbox-gateway-tasks"

// WorkflowName is the registered name of TaskWorkflow.
const WorkflowName = "TaskExecution"

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2,
		MaximumAttempts:    3,
	},
}

// executeTaskOptions has no retry: the agent turn is never retried at the
// workflow layer, and it may run for as long as the agent needs.
var executeTaskOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Hour,
	RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
}

// TaskWorkflow runs the five steps of a task run in strict order: create-run,
// prepare-sandbox, execute-task, complete-run, backup-session. Each step is a
// Temporal activity; Temporal's event history makes every completed activity
// a replay no-op, which is the step memoization the workflow relies on.
func TaskWorkflow(ctx workflow.Context, params TaskParams) (*TaskResult, error) {
	logger := workflow.GetLogger(ctx)

	runCtx := workflow.WithActivityOptions(ctx, activityOptions)
	var a *Activities
	if err := workflow.ExecuteActivity(runCtx, a.CreateRun, params).Get(runCtx, nil); err != nil {
		return nil, err
	}

	var prepared prepareResult
	if err := workflow.ExecuteActivity(runCtx, a.PrepareSandbox, params).Get(runCtx, &prepared); err != nil {
		return nil, err
	}

	execCtx := workflow.WithActivityOptions(ctx, executeTaskOptions)
	var executed executeResult
	if err := workflow.ExecuteActivity(execCtx, a.ExecuteTask, params, prepared).Get(execCtx, &executed); err != nil {
		// execute-task itself never throws; an error here means the
		// activity infrastructure failed, not the agent turn. Treat it as
		// a failed run rather than aborting before complete-run can run.
		logger.Error("execute-task activity infrastructure failure", "error", err)
		executed = executeResult{Success: false, Error: err.Error(), OpencodeSessionID: params.ExistingOpencodeSessionID}
	}

	result := TaskResult{
		Success:           executed.Success,
		Output:            executed.Output,
		Error:             executed.Error,
		Title:             params.Title,
		OpencodeSessionID: executed.OpencodeSessionID,
		WorkspacePath:     prepared.WorkspacePath,
		Tokens:            executed.Tokens,
	}

	if err := workflow.ExecuteActivity(runCtx, a.CompleteRun, params, result).Get(runCtx, nil); err != nil {
		return nil, err
	}

	// backup-session is advisory; its own activity swallows errors, but we
	// still don't let an activity-layer failure fail the workflow.
	if err := workflow.ExecuteActivity(runCtx, a.BackupSession, params, result).Get(runCtx, nil); err != nil {
		logger.Warn("backup-session activity failed", "error", err)
	}

	return &result, nil
}
