package fetch

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies how a fetch ended.
type Kind int

const (
	// Content means the page rendered and enough text was extracted.
	Content Kind = iota
	// Degraded means the browser path failed and a cheaper strategy was
	// used. Text may be empty when every strategy failed.
	Degraded
	// TimedOut means a layer ran into the call budget.
	TimedOut
	// Blocked means the target refused access or served too little text to
	// be a real page.
	Blocked
)

func (k Kind) String() string {
	switch k {
	case Content:
		return "content"
	case Degraded:
		return "degraded"
	case TimedOut:
		return "timed_out"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single Fetch call.
type Outcome struct {
	Kind    Kind
	Text    string
	Reason  string
	Elapsed time.Duration
}

// HasText reports whether the outcome carries usable page text.
func (o Outcome) HasText() bool {
	return (o.Kind == Content || o.Kind == Degraded) && o.Text != ""
}

// Excerpt returns Text cut to at most n characters, for storage.
func (o Outcome) Excerpt(n int) string {
	return truncate(o.Text, n)
}

var blankRuns = regexp.MustCompile(`\n\s*\n`)

// Normalize collapses runs of blank lines into a single newline and trims
// surrounding whitespace.
func Normalize(raw string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(raw, "\n"))
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
