package workflow

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// RegisterWorker registers TaskWorkflow and its activities on w. Callers
// own the worker's lifecycle (worker.New, Run/Stop).
func RegisterWorker(w worker.Worker, activities *Activities) {
	w.RegisterWorkflowWithOptions(TaskWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(activities.CreateRun, activity.RegisterOptions{Name: "create-run"})
	w.RegisterActivityWithOptions(activities.PrepareSandbox, activity.RegisterOptions{Name: "prepare-sandbox"})
	w.RegisterActivityWithOptions(activities.ExecuteTask, activity.RegisterOptions{Name: "execute-task"})
	w.RegisterActivityWithOptions(activities.CompleteRun, activity.RegisterOptions{Name: "complete-run"})
	w.RegisterActivityWithOptions(activities.BackupSession, activity.RegisterOptions{Name: "backup-session"})
}
