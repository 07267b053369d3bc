package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/sandbox-gateway/internal/logging"
)

func captureLog(t *testing.T, fn func()) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	prior := logging.Logger
	logging.Logger = zerolog.New(&buf)
	defer func() { logging.Logger = prior }()

	fn()

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestToolEventEmitsSuccess(t *testing.T) {
	out := captureLog(t, func() {
		e := NewToolEvent("run_task")
		e.StartPhase("validate")
		e.EndPhase("validate")
		e.Succeed()
		e.Emit()
	})

	assert.Equal(t, "run_task", out["tool"])
	assert.Equal(t, "success", out["outcome"])
	assert.Equal(t, "sandbox-mcp", out["service"])
	assert.Contains(t, out, "phase.validateMs")
}

func TestToolEventEmitsFailure(t *testing.T) {
	out := captureLog(t, func() {
		e := NewToolEvent("get_result")
		e.Fail(assertErr("run not found"))
		e.Emit()
	})

	assert.Equal(t, "error", out["outcome"])
	assert.Equal(t, "run not found", out["error"])
}

func TestWorkflowEventTagsFailurePhase(t *testing.T) {
	out := captureLog(t, func() {
		e := NewWorkflowEvent(context.Background(), "run-1", "run-1", "ses1")
		e.Fail("prepare-sandbox", assertErr("sandbox unreachable"))
		e.Emit()
	})

	assert.Equal(t, "error", out["outcome"])
	assert.Equal(t, "prepare-sandbox", out["error.phase"])
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
