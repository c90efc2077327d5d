package model

import (
	"strings"

	"github.com/google/uuid"
)

// ClaimStatus is the verification state of a claim.
type ClaimStatus string

const (
	StatusPendingVerification ClaimStatus = "Pending Verification"
	StatusAccurate            ClaimStatus = "Accurate"
	StatusPartiallyAccurate   ClaimStatus = "Partially Accurate"
	StatusInaccurate          ClaimStatus = "Inaccurate"
	StatusPendingOutcome      ClaimStatus = "Pending Outcome"
)

// VerificationStatuses returns the statuses a verifier may assign.
func VerificationStatuses() []ClaimStatus {
	return []ClaimStatus{
		StatusAccurate,
		StatusPartiallyAccurate,
		StatusInaccurate,
		StatusPendingOutcome,
	}
}

// IsVerification reports whether s is one of the four verifier outcomes.
func (s ClaimStatus) IsVerification() bool {
	switch s {
	case StatusAccurate, StatusPartiallyAccurate, StatusInaccurate, StatusPendingOutcome:
		return true
	}
	return false
}

// ParseVerificationStatus matches a verifier outcome case-insensitively.
func ParseVerificationStatus(s string) (ClaimStatus, bool) {
	s = strings.TrimSpace(s)
	for _, st := range VerificationStatuses() {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// MarketDataPoint is one piece of price evidence. Price is kept as text
// because sources return formatted, currency-prefixed values.
type MarketDataPoint struct {
	Date  string `json:"date" yaml:"date"`
	Price string `json:"price" yaml:"price"`
	Asset string `json:"asset" yaml:"asset"`
}

// Source is a grounding citation returned by the model provider.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Claim is a structured financial prediction taken from a video.
type Claim struct {
	ID              string            `json:"id" yaml:"id"`
	CreatorHandle   string            `json:"creatorId" yaml:"creator_handle"`
	VideoTitle      string            `json:"videoTitle" yaml:"video_title"`
	VideoDate       string            `json:"videoDate" yaml:"video_date"`
	VideoURL        string            `json:"videoUrl" yaml:"video_url"`
	Timestamp       string            `json:"timestamp" yaml:"timestamp"`
	RawQuote        string            `json:"rawQuote" yaml:"raw_quote"`
	StructuredClaim string            `json:"structuredClaim" yaml:"structured_claim"`
	Asset           string            `json:"asset" yaml:"asset"`
	Status          ClaimStatus       `json:"status" yaml:"status"`
	Score           float64           `json:"score" yaml:"score"`
	Explanation     string            `json:"explanation" yaml:"explanation"`
	MarketData      []MarketDataPoint `json:"marketData,omitempty" yaml:"market_data"`
}

// NewPendingClaim builds a claim awaiting verification, tagged with its
// source video and a fresh ID.
func NewPendingClaim(handle string, video Video, timestamp, rawQuote, structured, asset string) Claim {
	return Claim{
		ID:              uuid.New().String(),
		CreatorHandle:   handle,
		VideoTitle:      video.Title,
		VideoDate:       video.Date,
		VideoURL:        video.URL,
		Timestamp:       timestamp,
		RawQuote:        rawQuote,
		StructuredClaim: structured,
		Asset:           asset,
		Status:          StatusPendingVerification,
		Score:           0,
	}
}

// Verifiable reports whether the claim may still be sent to the verifier.
func (c Claim) Verifiable() bool {
	return c.Status == StatusPendingVerification
}

// Apply overwrites the verification fields with a verifier result.
func (c *Claim) Apply(r VerificationResult) {
	c.Status = r.Status
	c.Score = r.Score
	c.Explanation = r.Explanation
	c.MarketData = r.MarketData
}

// VerificationResult is the verifier's verdict on one claim.
type VerificationResult struct {
	Status      ClaimStatus       `json:"status"`
	Score       float64           `json:"score"`
	Explanation string            `json:"explanation"`
	MarketData  []MarketDataPoint `json:"marketData"`
	Sources     []Source          `json:"sources,omitempty"`
}
