package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ToolName is the closed set of capabilities a plan may call.
type ToolName int

const (
	Unknown ToolName = iota
	FetchPage
	WebSearch
	Archive
	Notify
)

var toolNames = map[ToolName]string{
	FetchPage: "fetch_page",
	WebSearch: "web_search",
	Archive:   "archive",
	Notify:    "notify",
}

// Older plans used the names of the services behind each tool.
var toolAliases = map[string]ToolName{
	"fetch_page":     FetchPage,
	"web_research":   FetchPage,
	"web_search":     WebSearch,
	"search":         WebSearch,
	"archive":        Archive,
	"save_to_notion": Archive,
	"notify":         Notify,
	"dispatch_email": Notify,
}

// ParseToolName maps a wire name to a ToolName; unrecognised names map to Unknown.
func ParseToolName(s string) ToolName {
	return toolAliases[strings.ToLower(strings.TrimSpace(s))]
}

func (t ToolName) String() string {
	if n, ok := toolNames[t]; ok {
		return n
	}
	return "unknown"
}

// Class says whether a tool feeds the intelligence pool or publishes the report.
type Class int

const (
	ClassNone Class = iota
	ClassGather
	ClassDisseminate
)

func (t ToolName) Class() Class {
	switch t {
	case FetchPage, WebSearch:
		return ClassGather
	case Archive, Notify:
		return ClassDisseminate
	case Unknown:
		return ClassNone
	}
	return ClassNone
}

// Args are the raw arguments of a plan step.
type Args map[string]any

// String returns the first non-empty value stored under keys.
func (a Args) String(keys ...string) string {
	for _, k := range keys {
		v, ok := a[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case fmt.Stringer:
			s = x.String()
		case float64, int, int64, bool:
			s = fmt.Sprint(x)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Clone returns a shallow copy.
func (a Args) Clone() Args {
	out := make(Args, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	return out
}

// RunContext carries the mission a call belongs to. Fallback is the content
// the integrity gate substitutes when a publish step carries unusable text.
type RunContext struct {
	MissionID int64
	Goal      string
	Fallback  string
}

// Handler is a capability bound to one ToolName. Handlers validate their own
// arguments and signal bad input by wrapping ErrValidation.
type Handler interface {
	Name() ToolName
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, args Args, run RunContext) (string, error)
}

// Registry manages the set of available tools.
type Registry struct {
	handlers map[ToolName]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[ToolName]Handler),
	}
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

func (r *Registry) Get(name ToolName) Handler {
	return r.handlers[name]
}

// Handlers returns the registered handlers ordered by ToolName.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (t ToolName) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText never fails: unrecognised names become Unknown so a plan
// step naming a missing tool is reported rather than rejected.
func (t *ToolName) UnmarshalText(b []byte) error {
	*t = ParseToolName(string(b))
	return nil
}
