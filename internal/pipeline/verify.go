package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/model"
)

// Verifier checks a structured claim against real market outcomes.
type Verifier struct {
	gen llm.Generator
}

// NewVerifier creates a Verifier.
func NewVerifier(gen llm.Generator) *Verifier {
	return &Verifier{gen: gen}
}

type verifyAnswer struct {
	Status      string                  `json:"status"`
	Score       flexFloat               `json:"score"`
	Explanation string                  `json:"explanation"`
	MarketData  []model.MarketDataPoint `json:"marketData"`
}

// Verify returns the verdict for claim. Failures are always returned as
// errors; callers that must not block use FallbackVerification.
func (v *Verifier) Verify(ctx context.Context, claim string) (*model.VerificationResult, error) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil, eris.New("pipeline: claim text is empty")
	}

	resp, err := v.gen.Generate(ctx, llm.Request{
		Operation: "verify",
		System:    verifySystem,
		Prompt:    verifyPrompt(claim),
		Tier:      llm.TierDeep,
		Grounded:  true,
		Schema:    verifySchema,
	})
	if err != nil {
		return nil, providerErr("verify claim", err)
	}

	cleaned := cleanJSON(resp.Text)
	if cleaned == "" {
		return nil, &ParseError{Operation: "verify", Raw: resp.Text, Err: errEmptyAnswer}
	}
	var ans verifyAnswer
	if err := json.Unmarshal([]byte(cleaned), &ans); err != nil {
		return nil, &ParseError{Operation: "verify", Raw: resp.Text, Err: err}
	}

	status, ok := model.ParseVerificationStatus(ans.Status)
	if !ok {
		return nil, &ParseError{Operation: "verify", Raw: resp.Text, Err: eris.Errorf("unknown status %q", ans.Status)}
	}

	result := &model.VerificationResult{
		Status:      status,
		Score:       clamp01(float64(ans.Score)),
		Explanation: appendSources(strings.TrimSpace(ans.Explanation), resp.Sources),
		MarketData:  ans.MarketData,
		Sources:     llm.DedupeSources(resp.Sources),
	}
	if result.MarketData == nil {
		result.MarketData = []model.MarketDataPoint{}
	}

	zap.L().Info("pipeline: claim verified",
		zap.String("status", string(result.Status)),
		zap.Float64("score", result.Score),
		zap.Int("data_points", len(result.MarketData)),
		zap.Int("sources", len(result.Sources)),
	)
	return result, nil
}

// appendSources adds a "Sources:" block listing each grounding source once.
func appendSources(explanation string, sources []model.Source) string {
	sources = llm.DedupeSources(sources)
	if len(sources) == 0 {
		return explanation
	}
	var b strings.Builder
	b.WriteString(explanation)
	b.WriteString("\n\nSources:")
	for _, s := range sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = s.URI
		}
		b.WriteString("\nSource: ")
		b.WriteString(title)
		b.WriteString(" (")
		b.WriteString(s.URI)
		b.WriteString(")")
	}
	return b.String()
}

// FallbackVerification is the verdict recorded when verification fails, so
// a single failure never blocks the audit.
func FallbackVerification(err error) model.VerificationResult {
	return model.VerificationResult{
		Status:      model.StatusPendingOutcome,
		Score:       0,
		Explanation: "Verification failed: " + err.Error(),
		MarketData:  []model.MarketDataPoint{},
	}
}
