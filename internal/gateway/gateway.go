package gateway

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rahul/mia/internal/agent"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat, split to the platform's size limit
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// MissionRunner starts missions. *agent.Orchestrator implements it.
type MissionRunner interface {
	StartMission(ctx context.Context, goal string, conversationID *int64) (*agent.MissionRecord, error)
}

// Chunk splits text into pieces of at most limit runes, preferring to break
// after a newline.
func Chunk(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

const helpText = "Send a goal to start a mission, e.g. \"H100 hourly pricing\".\n/analyze <goal> names the goal's intent without running it."

// intake turns chat messages into missions. It is shared by every Messenger.
type intake struct {
	missions MissionRunner
	analyzer agent.IntentAnalyzer
}

// handle answers one inbound message through reply. conversationID ties
// the mission to the chat it came from.
func (in intake) handle(ctx context.Context, text string, conversationID int64, reply func(string) error) error {
	text = strings.TrimSpace(text)
	switch {
	case text == "" || text == "/start" || text == "/help":
		return reply(helpText)
	case strings.HasPrefix(text, "/analyze"):
		goal := strings.TrimSpace(strings.TrimPrefix(text, "/analyze"))
		if goal == "" || in.analyzer == nil {
			return reply(helpText)
		}
		return reply("Intent: " + in.analyzer.Identify(ctx, goal))
	}

	if err := reply("Mission accepted: " + text); err != nil {
		return err
	}
	rec, _ := in.missions.StartMission(ctx, text, &conversationID)
	return reply(rec.Summary())
}
