// Package telemetry emits newline-delimited JSON "wide events" to stdout:
// one event per tool call, one per workflow execution.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencode-ai/sandbox-gateway/internal/eventbus"
	"github.com/opencode-ai/sandbox-gateway/internal/logging"
)

func init() {
	eventbus.SubscribeAll(func(event eventbus.Event) {
		logging.Component("telemetry").Debug().
			Str("eventType", string(event.Type)).
			Interface("data", event.Data).
			Msg("lifecycle event")
	})
}

// Service and Version tag every emitted event.
const (
	Service = "sandbox-mcp"
	Version = "1.0.0"
)

var (
	tracer = otel.Tracer("sandbox-gateway")
	meter  = otel.Meter("sandbox-gateway")

	toolCallCounter, _     = meter.Int64Counter("sandbox_gateway.tool_calls")
	workflowRunCounter, _  = meter.Int64Counter("sandbox_gateway.workflow_runs")
)

// ToolEvent accumulates the wide event for one tool call: start time,
// phase timers, and the final outcome.
type ToolEvent struct {
	tool      string
	requestID string
	start     time.Time
	phases    map[string]time.Duration
	phaseAt   map[string]time.Time
	outcome   string
	err       error
	metadata  map[string]any
	ctx       context.Context
	span      trace.Span
}

// NewToolEvent starts timing a tool call and opens a trace span for it,
// tagged with a fresh requestId used to correlate the span with the
// emitted wide event.
func NewToolEvent(tool string) *ToolEvent {
	ctx, span := tracer.Start(context.Background(), "tool."+tool)
	return &ToolEvent{
		tool:      tool,
		requestID: uuid.NewString(),
		start:     time.Now(),
		phases:    make(map[string]time.Duration),
		phaseAt:   make(map[string]time.Time),
		outcome:   "success",
		ctx:       ctx,
		span:      span,
	}
}

// Context returns the span-carrying context for downstream calls that
// accept a context.Context, so the tool span nests storage/proxy spans.
func (e *ToolEvent) Context() context.Context { return e.ctx }

// StartPhase begins timing one of the named phases (validate, storage,
// token, workflow).
func (e *ToolEvent) StartPhase(name string) {
	e.phaseAt[name] = time.Now()
}

// EndPhase records the elapsed time since the matching StartPhase call.
func (e *ToolEvent) EndPhase(name string) {
	if started, ok := e.phaseAt[name]; ok {
		e.phases[name] = time.Since(started)
	}
}

// Succeed marks the call as successful. Safe to call even if Fail already ran.
func (e *ToolEvent) Succeed() {
	if e.err == nil {
		e.outcome = "success"
	}
}

// Fail records the outcome as a failure with err.
func (e *ToolEvent) Fail(err error) {
	e.outcome = "error"
	e.err = err
}

// WithMetadata attaches arbitrary extra fields to the emitted event.
func (e *ToolEvent) WithMetadata(kv map[string]any) *ToolEvent {
	e.metadata = kv
	return e
}

// Emit writes the wide event and closes the span opened by NewToolEvent.
// Intended to be called via defer.
func (e *ToolEvent) Emit() {
	if e.err != nil {
		e.span.RecordError(e.err)
		e.span.SetStatus(codes.Error, e.err.Error())
	} else {
		e.span.SetStatus(codes.Ok, "")
	}
	e.span.End()

	toolCallCounter.Add(e.ctx, 1, metric.WithAttributes(
		attribute.String("tool", e.tool),
		attribute.String("outcome", e.outcome),
	))

	evt := logging.Info()
	if e.outcome == "error" {
		evt = logging.Error()
	}
	evt = evt.
		Time("timestamp", time.Now()).
		Str("requestId", e.requestID).
		Str("tool", e.tool).
		Str("service", Service).
		Str("version", Version).
		Int64("durationMs", time.Since(e.start).Milliseconds()).
		Str("outcome", e.outcome)

	for name, d := range e.phases {
		evt = evt.Int64("phase."+name+"Ms", d.Milliseconds())
	}
	if e.err != nil {
		evt = evt.Str("error", e.err.Error())
	}
	if e.metadata != nil {
		evt = evt.Interface("metadata", e.metadata)
	}
	evt.Msg("tool.call")
}

// WorkflowEvent is the wide event emitted once per workflow execution.
type WorkflowEvent struct {
	WorkflowID string
	RunID      string
	SessionID  string
	start      time.Time
	outcome    string
	errPhase   string
	err        error
	ctx        context.Context
	span       trace.Span
}

// NewWorkflowEvent starts timing from the call and opens the workflow's
// trace span as a child of ctx. Its only caller is the complete-run
// activity, so the earlier steps do not nest under this span.
func NewWorkflowEvent(ctx context.Context, workflowID, runID, sessionID string) *WorkflowEvent {
	spanCtx, span := tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflowId", workflowID),
			attribute.String("runId", runID),
			attribute.String("sessionId", sessionID),
		))
	return &WorkflowEvent{
		WorkflowID: workflowID,
		RunID:      runID,
		SessionID:  sessionID,
		start:      time.Now(),
		outcome:    "success",
		ctx:        spanCtx,
		span:       span,
	}
}

// Context returns the span-carrying context for activity calls.
func (e *WorkflowEvent) Context() context.Context { return e.ctx }

// Fail records the outcome as a failure, tagging which step it failed in.
func (e *WorkflowEvent) Fail(phase string, err error) {
	e.outcome = "error"
	e.errPhase = phase
	e.err = err
}

// Emit writes the workflow wide event and closes its span.
func (e *WorkflowEvent) Emit() {
	if e.err != nil {
		e.span.RecordError(e.err)
		e.span.SetStatus(codes.Error, e.err.Error())
	} else {
		e.span.SetStatus(codes.Ok, "")
	}
	e.span.End()

	workflowRunCounter.Add(e.ctx, 1, metric.WithAttributes(
		attribute.String("outcome", e.outcome),
	))

	evt := logging.Info()
	if e.outcome == "error" {
		evt = logging.Error()
	}
	evt = evt.
		Time("timestamp", time.Now()).
		Str("workflowId", e.WorkflowID).
		Str("runId", e.RunID).
		Str("sessionId", e.SessionID).
		Str("service", Service).
		Str("version", Version).
		Int64("durationMs", time.Since(e.start).Milliseconds()).
		Str("outcome", e.outcome)
	if e.err != nil {
		evt = evt.Str("error.phase", e.errPhase).Str("error.message", e.err.Error())
	}
	evt.Msg("workflow")
}
