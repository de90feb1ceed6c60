package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"character_asset_compiler/blueprint"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NotFoundError reports a missing blueprint.
type NotFoundError = blueprint.NotFoundError

// ParseError reports a completion that does not have the required block
// structure.
type ParseError struct {
	Kind   Kind
	Reason string
	// Expected and Found are set for block count mismatches.
	Expected int
	Found    int
	// Excerpt is the start of the offending raw text.
	Excerpt string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse")
	if e.Kind != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Kind))
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// UpstreamError wraps a failure of the completion service.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Provider == "" {
		return "upstream: " + e.Err.Error()
	}
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StepError is returned when a run halts at step Step.
type StepError struct {
	Step int
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

const excerptLimit = 240

func excerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= excerptLimit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:excerptLimit]) + "..."
}

// ErrorClass names the taxonomy class of err for reports.
func ErrorClass(err error) string {
	var (
		pe *ParseError
		ve *ValidationError
		nf *NotFoundError
		ue *UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ue):
		return "upstream"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	default:
		return "error"
	}
}
