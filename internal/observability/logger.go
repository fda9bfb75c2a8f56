package observability

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeMission    EventType = "mission"
	EventTypePlan       EventType = "plan"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeFallback   EventType = "fallback"
	EventTypeIntegrity  EventType = "integrity"
	EventTypeHeartbeat  EventType = "heartbeat"
	EventTypeLLM        EventType = "llm"
)

// LogConfig configures the process-wide zerolog logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

// Setup installs the global logger. Pretty output goes through the terminal
// writer so it never interleaves with the live status line.
func Setup(cfg LogConfig) {
	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: NewTermWriter(), TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Logger handles structured mission events. LLM exchanges are mirrored to a
// rotated JSONL file for later inspection.
type Logger struct {
	base zerolog.Logger
	llm  zerolog.Logger
}

func NewLogger(llmLogPath string) *Logger {
	l := &Logger{base: log.Logger, llm: zerolog.Nop()}
	if llmLogPath != "" {
		l.llm = zerolog.New(&rotatingFile{path: llmLogPath, maxSize: 10 * 1024 * 1024}).With().Timestamp().Logger()
	}
	return l
}

// NopLogger discards everything; handy for tests and embedding.
func NopLogger() *Logger {
	return &Logger{base: zerolog.Nop(), llm: zerolog.Nop()}
}

func (l *Logger) event(t EventType, missionID int64) *zerolog.Event {
	e := l.base.Info().Str("type", string(t))
	if missionID != 0 {
		e = e.Int64("mission_id", missionID)
	}
	return e
}

func (l *Logger) LogMission(missionID int64, status, goal string) {
	l.event(EventTypeMission, missionID).Str("status", status).Str("goal", goal).Msg("mission state")
}

func (l *Logger) LogPlan(missionID int64, steps int) {
	l.event(EventTypePlan, missionID).Int("steps", steps).Msg("plan generated")
}

func (l *Logger) LogToolCall(missionID int64, tool string, args map[string]any) {
	l.event(EventTypeToolCall, missionID).Str("tool", tool).Interface("args", args).Msg("executing tool")
}

func (l *Logger) LogToolResult(missionID int64, tool, kind string, chars int) {
	l.event(EventTypeToolResult, missionID).Str("tool", tool).Str("kind", kind).Int("chars", chars).Msg("tool finished")
}

func (l *Logger) LogFallback(missionID int64, address, query, reason string) {
	l.base.Warn().Str("type", string(EventTypeFallback)).Int64("mission_id", missionID).
		Str("address", address).Str("query", query).Str("reason", reason).Msg("protection detected, falling back to search")
}

func (l *Logger) LogIntegrity(missionID int64, reason string) {
	l.base.Warn().Str("type", string(EventTypeIntegrity)).Int64("mission_id", missionID).
		Str("reason", reason).Msg("data integrity check failed")
}

func (l *Logger) LogHeartbeat() {
	l.base.Debug().Str("type", string(EventTypeHeartbeat)).Str("status", "alive").Send()
}

func (l *Logger) LogLLM(purpose, prompt, response string, attempt int) {
	l.base.Debug().Str("type", string(EventTypeLLM)).Str("purpose", purpose).Int("attempt", attempt).
		Int("prompt_chars", len(prompt)).Int("response_chars", len(response)).Msg("llm exchange")
	l.llm.Info().Str("type", string(EventTypeLLM)).Str("purpose", purpose).Int("attempt", attempt).
		Str("prompt", prompt).Str("response", response).Send()
}

// Warn and Error expose the base logger for one-off failures that do not fit
// an event type.
func (l *Logger) Warn() *zerolog.Event  { return l.base.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.base.Error() }

// rotatingFile appends to path and keeps a single .old generation once the
// file grows past maxSize.
type rotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return 0, err
	}
	if info, err := os.Stat(r.path); err == nil && info.Size() > r.maxSize {
		oldPath := r.path + ".old"
		_ = os.Remove(oldPath)
		_ = os.Rename(r.path, oldPath)
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}
