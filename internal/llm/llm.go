// Package llm is the provider-agnostic generation port used by the audit
// pipeline. Providers register factories; callers depend on Generator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sells-group/audit-engine/internal/model"
)

// Tier selects a model class. Fast handles resolution and extraction,
// Deep handles verification.
type Tier int

const (
	TierFast Tier = iota
	TierDeep
)

func (t Tier) String() string {
	if t == TierDeep {
		return "deep"
	}
	return "fast"
}

// Request is a single generation call.
type Request struct {
	// Operation labels the call for logs and metrics (resolve, extract, verify).
	Operation string
	System    string
	Prompt    string
	Tier      Tier
	// Grounded asks the provider to search the web before answering.
	Grounded bool
	// Schema is a JSON schema for providers that enforce structured output.
	Schema      json.RawMessage
	Temperature *float64
}

// Response is the provider's answer.
type Response struct {
	Text         string
	Sources      []model.Source
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator produces text for a Request.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrMissingCredential is matched by CredentialError.
var ErrMissingCredential = errors.New("llm: missing credential")

// CredentialError reports a provider key that was never configured.
type CredentialError struct {
	Provider string
	EnvVar   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s API key is not defined. Set %s in the environment or config.yaml", e.Provider, e.EnvVar)
}

func (e *CredentialError) Is(target error) bool {
	return target == ErrMissingCredential
}

// missingKey stands in for a provider with no credential. It fails every
// call before any network I/O.
type missingKey struct {
	err *CredentialError
}

func (m missingKey) Name() string { return m.err.Provider }

func (m missingKey) Generate(context.Context, Request) (*Response, error) {
	return nil, m.err
}

// DedupeSources drops sources with an empty or repeated URI, keeping order.
func DedupeSources(in []model.Source) []model.Source {
	seen := make(map[string]bool, len(in))
	var out []model.Source
	for _, s := range in {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		out = append(out, s)
	}
	return out
}
