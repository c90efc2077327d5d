package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/pkg/youtube"
)

const defaultTimestamp = "00:00"

// ExtractedClaim is one prediction found in a video, before it becomes a
// tracked claim.
type ExtractedClaim struct {
	RawQuote        string `json:"rawQuote"`
	Timestamp       string `json:"timestamp"`
	StructuredClaim string `json:"structuredClaim"`
	Asset           string `json:"asset"`
}

// ExtractResult is the outcome of one extraction.
type ExtractResult struct {
	Claims []ExtractedClaim
	// IsAnalysisHeavy flags videos with more claims than the configured
	// threshold.
	IsAnalysisHeavy bool
	Dropped         int
}

// ToClaims converts extracted claims into pending claims tied to video.
func (r *ExtractResult) ToClaims(handle string, video model.Video) []model.Claim {
	out := make([]model.Claim, 0, len(r.Claims))
	for _, c := range r.Claims {
		out = append(out, model.NewPendingClaim(handle, video, c.Timestamp, c.RawQuote, c.StructuredClaim, c.Asset))
	}
	return out
}

// Extractor pulls checkable predictions out of a video.
type Extractor struct {
	gen            llm.Generator
	heavyThreshold int
}

// NewExtractor creates an Extractor. heavyThreshold is the claim count
// above which a video counts as analysis-heavy.
func NewExtractor(gen llm.Generator, heavyThreshold int) *Extractor {
	return &Extractor{gen: gen, heavyThreshold: heavyThreshold}
}

// Extract returns the predictions in the video. An empty claim list is
// valid; a blank answer is a ParseError, as for the other stages.
func (e *Extractor) Extract(ctx context.Context, title, videoURL string) (*ExtractResult, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(videoURL) == "" {
		return nil, eris.New("pipeline: extract needs a video title or URL")
	}

	resp, err := e.gen.Generate(ctx, llm.Request{
		Operation: "extract",
		System:    extractSystem,
		Prompt:    extractPrompt(title, videoURL),
		Tier:      llm.TierFast,
		Grounded:  true,
		Schema:    extractSchema,
	})
	if err != nil {
		return nil, providerErr("extract claims", err)
	}

	raw, err := parseClaims(resp.Text)
	if err != nil {
		return nil, &ParseError{Operation: "extract", Raw: resp.Text, Err: err}
	}

	result := &ExtractResult{}
	for _, c := range raw {
		c.RawQuote = strings.TrimSpace(c.RawQuote)
		c.StructuredClaim = strings.TrimSpace(c.StructuredClaim)
		c.Asset = strings.TrimSpace(c.Asset)
		c.Timestamp = strings.TrimSpace(c.Timestamp)
		if c.RawQuote == "" || c.StructuredClaim == "" || c.Asset == "" {
			result.Dropped++
			continue
		}
		if !youtube.ValidTimestamp(c.Timestamp) {
			c.Timestamp = defaultTimestamp
		}
		result.Claims = append(result.Claims, c)
	}
	result.IsAnalysisHeavy = len(result.Claims) > e.heavyThreshold

	zap.L().Info("pipeline: claims extracted",
		zap.String("video", title),
		zap.Int("claims", len(result.Claims)),
		zap.Int("dropped", result.Dropped),
		zap.Bool("analysis_heavy", result.IsAnalysisHeavy),
	)
	return result, nil
}

// parseClaims accepts a bare array or an object with a "claims" array. A
// blank answer is an error; "no claims" must be an explicit empty array.
func parseClaims(text string) ([]ExtractedClaim, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, errEmptyAnswer
	}

	var list []ExtractedClaim
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Claims *[]ExtractedClaim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Claims == nil {
		return nil, eris.New("answer has no claims array")
	}
	return *wrapped.Claims, nil
}
