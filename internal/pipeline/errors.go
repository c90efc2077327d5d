package pipeline

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-engine/internal/llm"
)

var errEmptyAnswer = errors.New("empty answer")

// ResolutionReason classifies why a channel could not be resolved.
type ResolutionReason string

const (
	ReasonEmptyQuery   ResolutionReason = "empty_query"
	ReasonParseFailure ResolutionReason = "parse_failure"
	ReasonNoContent    ResolutionReason = "no_content"
)

// ResolutionError is returned when a query cannot be turned into a channel
// with candidate videos.
type ResolutionError struct {
	Reason ResolutionReason
	Query  string
	Err    error
}

func (e *ResolutionError) Error() string {
	switch e.Reason {
	case ReasonEmptyQuery:
		return "search query is empty"
	case ReasonParseFailure:
		return "metadata parse failure"
	case ReasonNoContent:
		return "no verifiable financial content found"
	}
	return "channel resolution failed"
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ParseError reports a provider answer that did not match the expected shape.
type ParseError struct {
	Operation string
	Raw       string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: parse %s response: %v", e.Operation, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError is a deployment problem (such as a missing API key) that the
// user cannot fix by retrying. Its message is shown verbatim.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// providerErr turns a Generator failure into a ConfigError for missing
// credentials and a wrapped error otherwise.
func providerErr(operation string, err error) error {
	if errors.Is(err, llm.ErrMissingCredential) {
		return &ConfigError{Err: err}
	}
	return eris.Wrapf(err, "pipeline: %s", operation)
}
