package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InclusionKeywords mark forecast and valuation content worth auditing.
var InclusionKeywords = []string{
	"prediction", "forecast", "target", "price target", "outlook",
	"valuation", "buy", "sell", "multibagger", "stock picks",
	"portfolio", "market crash", "rally", "nifty", "sensex",
	"bitcoin", "gold", "earnings", "ipo", "fair value",
}

// ExclusionKeywords mark content that rarely carries checkable claims.
var ExclusionKeywords = []string{
	"vlog", "shorts", "interview", "podcast", "q&a", "unboxing",
	"day in my life", "motivation", "reaction", "live stream",
	"giveaway", "behind the scenes",
}

const resolveSystem = `You are a research assistant that identifies YouTube finance creators and shortlists their videos that contain checkable market predictions. Answer with JSON only.`

const extractSystem = `You are a financial claims analyst. You extract specific, verifiable market predictions from videos and ignore everything else. Answer with JSON only.`

const verifySystem = `You are a market data auditor. You check financial predictions against real historical prices found via search and cite what you find. Answer with JSON only.`

func resolvePrompt(query string, cfg ResolverConfig) string {
	return fmt.Sprintf(`Search YouTube for the channel "%s".

1. Confirm the channel name and @handle, a one-sentence description, and its niche (for example "Stock Market", "Personal Finance", "Crypto").
2. Find %d to %d of the most relevant recent videos from the last %d months that are:
   - Longer than %d minutes.
   - Related to at least one of: %s.
   - NOT related to any of: %s.

Return JSON: {"name": string, "handle": string, "description": string, "niche": string, "videos": [{"title": string, "date": "YYYY-MM-DD", "url": string}]}`,
		query,
		cfg.MinVideos, cfg.MaxVideos, cfg.LookbackMonths,
		cfg.MinVideoMinutes,
		strings.Join(InclusionKeywords, ", "),
		strings.Join(ExclusionKeywords, ", "),
	)
}

func extractPrompt(title, url string) string {
	return fmt.Sprintf(`Video: "%s" (%s).

Find specific, verifiable financial predictions made in this video (price targets, buy/sell calls, index levels, percentage moves).
Only include a claim when it names all three of:
- a specific asset,
- a specific target (a price or a percentage move),
- a specific timeframe or deadline.
Exclude vague or non-actionable statements. An empty list is a valid answer.

For each claim return the speaker's words as rawQuote, the approximate position in the video as timestamp (MM:SS), a one-line normalized claim as structuredClaim, and the asset name.
Return a JSON array: [{"rawQuote": string, "timestamp": "MM:SS", "structuredClaim": string, "asset": string}]`, title, url)
}

func verifyPrompt(claim string) string {
	return fmt.Sprintf(`Verify this financial prediction using search for real market data: "%s".

Determine whether the target was reached within the stated timeframe.
- "Accurate": the target was reached in time.
- "Partially Accurate": the direction was right but the target or deadline was missed by a small margin.
- "Inaccurate": the target was clearly missed.
- "Pending Outcome": the deadline has not passed yet.

Give a score between 0 and 1, a short explanation, and at least one price data point as proof.
Return JSON: {"status": string, "score": number, "explanation": string, "marketData": [{"date": "YYYY-MM-DD", "price": string, "asset": string}]}`, claim)
}

var extractSchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "rawQuote": {"type": "string"},
      "timestamp": {"type": "string"},
      "structuredClaim": {"type": "string"},
      "asset": {"type": "string"}
    },
    "required": ["rawQuote", "structuredClaim", "asset"]
  }
}`)

var verifySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "status": {"type": "string", "enum": ["Accurate", "Partially Accurate", "Inaccurate", "Pending Outcome"]},
    "score": {"type": "number"},
    "explanation": {"type": "string"},
    "marketData": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "date": {"type": "string"},
          "price": {"type": "string"},
          "asset": {"type": "string"}
        }
      }
    }
  },
  "required": ["status", "score", "explanation", "marketData"]
}`)
