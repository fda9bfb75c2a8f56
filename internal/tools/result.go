package tools

import "errors"

var (
	ErrValidation  = errors.New("invalid tool arguments")
	ErrUnknownTool = errors.New("tool not found")
	ErrBlocked     = errors.New("page blocked")
	ErrTimedOut    = errors.New("page fetch timed out")
	ErrUnreachable = errors.New("page unreachable")
)

// Kind classifies a tool outcome.
type Kind int

const (
	Success Kind = iota
	ValidationFailure
	TransientFailure
	PermanentFailure
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ValidationFailure:
		return "validation_failure"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result is the uniform outcome of every gateway invocation.
type Result struct {
	OK   bool
	Text string
	Kind Kind
}

func succeeded(text string) Result {
	return Result{OK: true, Text: text, Kind: Success}
}

func failed(err error) Result {
	kind := TransientFailure
	switch {
	case errors.Is(err, ErrValidation):
		kind = ValidationFailure
	case errors.Is(err, ErrUnknownTool):
		kind = NotFound
	case errors.Is(err, ErrBlocked):
		kind = PermanentFailure
	}
	return Result{Kind: kind, Text: err.Error()}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
