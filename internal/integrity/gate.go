// Package integrity guards externally visible writes against empty or
// placeholder content.
package integrity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/mia/internal/observability"
)

const (
	DefaultMinLength = 50
	DefaultSentinel  = "Mission failed: No meaningful data gathered."
)

var DefaultMarkers = []string{"placeholder", "insert here", "no data found", "error"}

// Verdict explains why a candidate was accepted or rejected.
type Verdict struct {
	OK     bool
	Reason string
}

type Gate struct {
	MinLength int
	Markers   []string
	Sentinel  string
}

func NewGate(minLength int, markers []string, sentinel string) *Gate {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Gate{MinLength: minLength, Markers: lowered, Sentinel: sentinel}
}

func DefaultGate() *Gate {
	return NewGate(DefaultMinLength, DefaultMarkers, DefaultSentinel)
}

// Inspect evaluates candidate without substituting anything.
func (g *Gate) Inspect(candidate string) Verdict {
	if strings.TrimSpace(candidate) == "" {
		return Verdict{Reason: "empty content"}
	}
	if n := utf8.RuneCountInString(candidate); n < g.MinLength {
		return Verdict{Reason: fmt.Sprintf("content too short (%d < %d characters)", n, g.MinLength)}
	}
	lower := strings.ToLower(candidate)
	for _, m := range g.Markers {
		if strings.Contains(lower, m) {
			return Verdict{Reason: fmt.Sprintf("content contains marker %q", m)}
		}
	}
	return Verdict{OK: true}
}

// Check returns candidate when it passes. Otherwise it returns fallback, or
// the sentinel when fallback is empty.
func (g *Gate) Check(candidate, fallback string) string {
	if g.Inspect(candidate).OK {
		return candidate
	}
	observability.IntegrityRejections.Inc()
	if fallback != "" {
		return fallback
	}
	return g.Sentinel
}
