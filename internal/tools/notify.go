package tools

import (
	"context"
	"fmt"

	"github.com/rahul/mia/internal/integrity"
)

// Notifier delivers a message to the operator's channels.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type NotifyTool struct {
	notifier Notifier
	gate     *integrity.Gate
}

func NewNotifyTool(notifier Notifier, gate *integrity.Gate) *NotifyTool {
	if gate == nil {
		gate = integrity.DefaultGate()
	}
	return &NotifyTool{notifier: notifier, gate: gate}
}

func (n *NotifyTool) Name() ToolName {
	return Notify
}

func (n *NotifyTool) Description() string {
	return "Send the final report to the operator."
}

func (n *NotifyTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Subject line of the notification",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message body; the orchestrator fills this in",
			},
		},
	}
}

func (n *NotifyTool) Execute(ctx context.Context, args Args, run RunContext) (string, error) {
	title := args.String("title", "subject")
	if title == "" {
		title = "Update"
	}
	body := n.gate.Check(args.String("content", "body"), run.Fallback)
	if err := n.notifier.Notify(ctx, "Agent Report: "+title, body); err != nil {
		return "", fmt.Errorf("notify failed: %w", err)
	}
	return "OK", nil
}
