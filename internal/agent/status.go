package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/mia/internal/tools"
)

var ErrInvalidTransition = errors.New("invalid mission status transition")

// Status is a mission's position in its lifecycle.
type Status string

const (
	StatusPlanning      Status = "PLANNING"
	StatusGathering     Status = "GATHERING"
	StatusSynthesizing  Status = "SYNTHESIZING"
	StatusPersisting    Status = "PERSISTING"
	StatusDisseminating Status = "DISSEMINATING"
	StatusComplete      Status = "COMPLETE"
	StatusFailed        Status = "FAILED"
)

var nextStatus = map[Status]Status{
	StatusPlanning:      StatusGathering,
	StatusGathering:     StatusSynthesizing,
	StatusSynthesizing:  StatusPersisting,
	StatusPersisting:    StatusDisseminating,
	StatusDisseminating: StatusComplete,
}

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether a mission in s may move to next. Missions
// advance one phase at a time; any live phase may fail.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return nextStatus[s] == next
}

// TraceEntry records the outcome of one attempted step.
type TraceEntry struct {
	Ordinal int            `json:"step"`
	Tool    tools.ToolName `json:"tool"`
	Outcome string         `json:"outcome"`
	Kind    tools.Kind     `json:"kind"`
}

// MissionRecord is the externally visible state of a mission. Only the
// orchestrator mutates it; once Status is terminal it no longer changes.
type MissionRecord struct {
	ID             int64        `json:"mission_id"`
	ConversationID *int64       `json:"conversation_id,omitempty"`
	Goal           string       `json:"goal"`
	Status         Status       `json:"status"`
	Report         string       `json:"report"`
	Trace          []TraceEntry `json:"trace"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
}

func (r *MissionRecord) advance(next Status) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Summary renders the record for chat replies and the terminal.
func (r *MissionRecord) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mission #%d %s\n", r.ID, r.Status)
	if r.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.Error)
	}
	if r.Report != "" {
		sb.WriteString("\n")
		sb.WriteString(r.Report)
		sb.WriteString("\n")
	}
	if len(r.Trace) > 0 {
		sb.WriteString("\nTrace:\n")
		for _, e := range r.Trace {
			fmt.Fprintf(&sb, "%d. %s: %s\n", e.Ordinal, e.Tool, firstLine(e.Outcome))
		}
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
