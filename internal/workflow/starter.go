package workflow

import (
	"context"

	"go.temporal.io/sdk/client"
)

// Starter submits TaskWorkflow instances to Temporal.
type Starter struct {
	Client    client.Client
	TaskQueue string
}

// NewStarter builds a Starter against an already-dialed Temporal client.
func NewStarter(c client.Client, taskQueue string) *Starter {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Starter{Client: c, TaskQueue: taskQueue}
}

// Start submits the workflow with workflow id = params.RunID, relying on
// Temporal's workflow-id uniqueness to guarantee at most one live execution
// per run.
func (s *Starter) Start(ctx context.Context, params TaskParams) (string, error) {
	run, err := s.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        params.RunID,
		TaskQueue: s.TaskQueue,
	}, TaskWorkflow, params)
	if err != nil {
		return "", err
	}
	return run.GetID(), nil
}
