package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/resilience"
	"github.com/sells-group/audit-engine/pkg/anthropic"
	"github.com/sells-group/audit-engine/pkg/gemini"
	"github.com/sells-group/audit-engine/pkg/perplexity"
)

func init() {
	RegisterProvider("gemini", newGemini, "google")
	RegisterProvider("perplexity", newPerplexity, "sonar")
	RegisterProvider("anthropic", newAnthropic, "claude")
}

// classify marks retryable provider status codes as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var status int
	var ge *gemini.StatusError
	var pe *perplexity.StatusError
	switch {
	case errors.As(err, &ge):
		status = ge.StatusCode
	case errors.As(err, &pe):
		status = pe.StatusCode
	default:
		status = anthropic.StatusCode(err)
	}
	if resilience.IsTransientStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

// --- gemini ---

type geminiGenerator struct {
	client gemini.Client
	fc     FactoryConfig
}

func newGemini(fc FactoryConfig) (Generator, error) {
	var opts []gemini.Option
	if fc.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(fc.BaseURL))
	}
	if fc.FastModel != "" {
		opts = append(opts, gemini.WithModel(fc.FastModel))
	}
	return &geminiGenerator{client: gemini.NewClient(fc.Key, opts...), fc: fc}, nil
}

func (g *geminiGenerator) Name() string { return "gemini" }

func (g *geminiGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	gr := gemini.GenerateRequest{
		Model:    g.fc.model(req.Tier),
		Contents: gemini.UserText(req.Prompt),
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:      req.Temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		},
	}
	if req.System != "" {
		gr.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: req.System}}}
	}
	if req.Grounded {
		gr.Tools = []gemini.Tool{gemini.GoogleSearchTool()}
	}

	resp, err := g.client.GenerateContent(ctx, gr)
	if err != nil {
		return nil, classify(err)
	}

	out := &Response{
		Text:         resp.Text(),
		Provider:     g.Name(),
		Model:        gr.Model,
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}
	for _, ws := range resp.WebSources() {
		out.Sources = append(out.Sources, model.Source{Title: ws.Title, URI: ws.URI})
	}
	out.Sources = DedupeSources(out.Sources)
	return out, nil
}

// --- perplexity ---

type perplexityGenerator struct {
	client perplexity.Client
	fc     FactoryConfig
}

func newPerplexity(fc FactoryConfig) (Generator, error) {
	var opts []perplexity.Option
	if fc.BaseURL != "" {
		opts = append(opts, perplexity.WithBaseURL(fc.BaseURL))
	}
	if fc.FastModel != "" {
		opts = append(opts, perplexity.WithModel(fc.FastModel))
	}
	return &perplexityGenerator{client: perplexity.NewClient(fc.Key, opts...), fc: fc}, nil
}

func (p *perplexityGenerator) Name() string { return "perplexity" }

// Generate always searches; sonar models have no ungrounded mode.
func (p *perplexityGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	var msgs []perplexity.Message
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	pr := perplexity.ChatCompletionRequest{
		Model:       p.fc.model(req.Tier),
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if len(req.Schema) > 0 {
		pr.ResponseFormat = perplexity.JSONSchemaFormat(req.Schema)
	}

	resp, err := p.client.ChatCompletion(ctx, pr)
	if err != nil {
		return nil, classify(err)
	}

	out := &Response{
		Text:         resp.Content(),
		Provider:     p.Name(),
		Model:        pr.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, sr := range resp.SearchResults {
		out.Sources = append(out.Sources, model.Source{Title: sr.Title, URI: sr.URL})
	}
	if len(out.Sources) == 0 {
		for _, c := range resp.Citations {
			out.Sources = append(out.Sources, model.Source{Title: c, URI: c})
		}
	}
	out.Sources = DedupeSources(out.Sources)
	return out, nil
}

// --- anthropic ---

type anthropicGenerator struct {
	client anthropic.Client
	fc     FactoryConfig
}

func newAnthropic(fc FactoryConfig) (Generator, error) {
	if fc.MaxTokens <= 0 {
		return nil, eris.New("llm: anthropic max_tokens must be > 0")
	}
	return &anthropicGenerator{client: anthropic.NewClient(fc.Key), fc: fc}, nil
}

func (a *anthropicGenerator) Name() string { return "anthropic" }

// Generate has no web grounding; Grounded requests are answered from model
// knowledge and carry no sources.
func (a *anthropicGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(fmt.Sprintf("%s\n\nRespond with JSON only, matching this JSON schema:\n%s", system, string(req.Schema)))
	}

	mr := anthropic.MessageRequest{
		Model:       a.fc.model(req.Tier),
		MaxTokens:   int64(a.fc.MaxTokens),
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}

	resp, err := a.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, classify(err)
	}
	resp.Usage.LogCost(mr.Model, req.Operation)

	return &Response{
		Text:         resp.Text(),
		Provider:     a.Name(),
		Model:        mr.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
