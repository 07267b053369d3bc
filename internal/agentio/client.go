// Package agentio wraps the coding agent subprocess's HTTP API: listing and
// reusing sessions, submitting prompts, and flattening the response into
// plain text the workflow can persist.
package agentio

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	opencode "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
)

// Client wraps one coding agent subprocess instance, reached over HTTP at
// the sandbox's exposed agent port.
type Client struct {
	sdk   *opencode.Client
	model Model
}

// Model names the provider/model pair the agent should use for a task.
type Model struct {
	ProviderID string
	ModelID    string
}

// New returns a Client talking to the agent subprocess at baseURL.
func New(baseURL string, model Model) *Client {
	sdk := opencode.NewClient(option.WithBaseURL(baseURL))
	return &Client{sdk: &sdk, model: model}
}

// EnsureSession returns the agent-side session matching directory, reusing
// an existing one if the subprocess already tracks it. Preference order:
// the given opencodeSessionID if it still resolves; otherwise the first
// session the subprocess already lists for directory (covers a gateway
// restart that lost the id off the session record but left the agent
// session itself running); otherwise a freshly created one.
func (c *Client) EnsureSession(ctx context.Context, opencodeSessionID, directory, title string) (string, error) {
	if opencodeSessionID != "" {
		existing, err := c.sdk.Session.Get(ctx, opencodeSessionID, opencode.SessionGetParams{})
		if err == nil && existing != nil {
			return existing.ID, nil
		}
	}

	sessions, err := c.sdk.Session.List(ctx, opencode.SessionListParams{
		Directory: opencode.String(directory),
	})
	if err == nil && sessions != nil && len(*sessions) > 0 {
		return (*sessions)[0].ID, nil
	}

	created, err := c.sdk.Session.New(ctx, opencode.SessionNewParams{
		Directory: opencode.String(directory),
		Title:     opencode.String(title),
	})
	if err != nil {
		return "", errs.SandboxAdapter("agent session create failed", err)
	}
	return created.ID, nil
}

// PromptResult is the flattened outcome of one agent turn.
type PromptResult struct {
	Text    string
	IsError bool
	Error   string
	// TurnID is a fresh sortable id minted for this turn, used to correlate
	// this prompt's log lines independently of the run and session ids.
	TurnID string
}

// structuredSummarySuffix is appended to every submitted task so the agent
// closes its final turn with a parseable one-line result.
const structuredSummarySuffix = "\n\nWhen you are done, end your final reply with a single line starting with `RESULT:` summarizing the outcome."

// Prompt submits task text to the given agent session and returns the
// concatenated text parts of the assistant's reply.
func (c *Client) Prompt(ctx context.Context, sessionID, task string) (*PromptResult, error) {
	turnID := ulid.Make().String()
	resp, err := c.sdk.Session.Message.New(ctx, sessionID, opencode.SessionMessageNewParams{
		Parts: []opencode.SessionMessageNewParamsPartUnion{
			{OfSessionMessageNewsPartTextPartInput: &opencode.SessionMessageNewParamsPartTextPartInput{
				Text: task + structuredSummarySuffix,
			}},
		},
		Model: opencode.SessionMessageNewParamsModel{
			ProviderID: c.model.ProviderID,
			ModelID:    c.model.ModelID,
		},
	})
	if err != nil {
		return nil, errs.SandboxAdapter("agent prompt failed", err)
	}

	result := &PromptResult{Text: concatTextParts(resp.Parts), TurnID: turnID}
	if resp.Info.Error.Name != "" {
		result.IsError = true
		result.Error = fmt.Sprintf("%s: %v", resp.Info.Error.Name, resp.Info.Error.Data)
	}
	return result, nil
}

func concatTextParts(parts []opencode.PartUnion) string {
	var b strings.Builder
	for _, p := range parts {
		if text := p.AsPartTextPart(); text.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
