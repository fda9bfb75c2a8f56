package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rahul/mia/internal/tools"
)

var ErrPlanParse = errors.New("no well-formed plan in planner output")

// Step is one tool invocation in a plan.
type Step struct {
	Ordinal   int
	Tool      tools.ToolName
	Args      tools.Args
	Rationale string
}

// Plan is immutable once parsed. Dropped counts the steps cut off by the
// step limit.
type Plan struct {
	Steps   []Step
	Dropped int
}

type rawStep struct {
	Step      any            `json:"step"`
	Tool      tools.ToolName `json:"tool"`
	Args      map[string]any `json:"args"`
	Thought   string         `json:"thought"`
	Rationale string         `json:"rationale"`
}

// ParsePlan extracts the first well-formed, non-empty JSON array of step
// objects from raw planner output. Text around the array is ignored. Plans
// longer than maxSteps are truncated; maxSteps <= 0 means no limit.
func ParsePlan(raw string, maxSteps int) (Plan, error) {
	for i := strings.IndexByte(raw, '['); i >= 0; {
		var steps []rawStep
		if err := json.NewDecoder(strings.NewReader(raw[i:])).Decode(&steps); err == nil && len(steps) > 0 {
			return buildPlan(steps, maxSteps), nil
		}
		next := strings.IndexByte(raw[i+1:], '[')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return Plan{}, ErrPlanParse
}

func buildPlan(raw []rawStep, maxSteps int) Plan {
	dropped := 0
	if maxSteps > 0 && len(raw) > maxSteps {
		dropped = len(raw) - maxSteps
		raw = raw[:maxSteps]
	}
	steps := make([]Step, 0, len(raw))
	for i, r := range raw {
		rationale := r.Thought
		if rationale == "" {
			rationale = r.Rationale
		}
		args := tools.Args(r.Args)
		if args == nil {
			args = tools.Args{}
		}
		steps = append(steps, Step{
			Ordinal:   ordinal(r.Step, i+1),
			Tool:      r.Tool,
			Args:      args,
			Rationale: rationale,
		})
	}
	return Plan{Steps: steps, Dropped: dropped}
}

func ordinal(v any, fallback int) int {
	switch x := v.(type) {
	case float64:
		if x >= 1 {
			return int(x)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil && n >= 1 {
			return n
		}
	}
	return fallback
}

// Gather returns the steps that feed the intelligence pool, in plan order.
// Steps naming an unknown tool are kept so they surface in the trace.
func (p Plan) Gather() []Step {
	return p.filter(func(c tools.Class) bool { return c != tools.ClassDisseminate })
}

// Disseminate returns the publish steps, in plan order.
func (p Plan) Disseminate() []Step {
	return p.filter(func(c tools.Class) bool { return c == tools.ClassDisseminate })
}

func (p Plan) filter(keep func(tools.Class) bool) []Step {
	var out []Step
	for _, s := range p.Steps {
		if keep(s.Tool.Class()) {
			out = append(out, s)
		}
	}
	return out
}

func (p Plan) String() string {
	var sb strings.Builder
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, "%d. %s", s.Ordinal, s.Tool)
		if s.Rationale != "" {
			fmt.Fprintf(&sb, ": %s", s.Rationale)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
