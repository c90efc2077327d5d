package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/model"
)

func TestVerify_Success(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Operation == "verify" && r.Tier == llm.TierDeep && r.Grounded &&
			strings.Contains(r.Prompt, `"Nifty 50 reaches 25,000 by Dec 2024"`)
	})).Return(&llm.Response{
		Text: `{"status":"accurate","score":"0.9","explanation":"Nifty crossed 25,000 in August 2024.","marketData":[{"date":"2024-08-01","price":"25,010","asset":"Nifty 50"}]}`,
		Sources: []model.Source{
			{Title: "NSE", URI: "https://nseindia.com/a"},
			{Title: "NSE again", URI: "https://nseindia.com/a"},
			{URI: "https://example.com/b"},
		},
	}, nil)

	res, err := NewVerifier(gen).Verify(context.Background(), " Nifty 50 reaches 25,000 by Dec 2024 ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccurate, res.Status)
	assert.InDelta(t, 0.9, res.Score, 0.0001)
	require.Len(t, res.MarketData, 1)
	assert.Equal(t, "25,010", res.MarketData[0].Price)
	assert.Len(t, res.Sources, 2)
	assert.Equal(t,
		"Nifty crossed 25,000 in August 2024.\n\nSources:"+
			"\nSource: NSE (https://nseindia.com/a)"+
			"\nSource: https://example.com/b (https://example.com/b)",
		res.Explanation)
	gen.AssertExpectations(t)
}

func TestVerify_ClampsScoreAndDefaultsMarketData(t *testing.T) {
	res, err := NewVerifier(answer(`{"status":"Pending Outcome","score":3,"explanation":"Deadline is in 2026."}`)).
		Verify(context.Background(), "Gold to 1 lakh by 2026")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingOutcome, res.Status)
	assert.Equal(t, 1.0, res.Score)
	assert.NotNil(t, res.MarketData)
	assert.Empty(t, res.MarketData)
	assert.Equal(t, "Deadline is in 2026.", res.Explanation, "no sources means no sources block")

	res, err = NewVerifier(answer(`{"status":"Inaccurate","score":-1,"explanation":"x","marketData":[]}`)).
		Verify(context.Background(), "c")
	require.NoError(t, err)
	assert.Zero(t, res.Score)
}

func TestVerify_Errors(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"blank", ""},
		{"not json", "The claim was accurate."},
		{"unknown status", `{"status":"Mostly True","score":0.5,"explanation":"x"}`},
		{"bad score", `{"status":"Accurate","score":"high","explanation":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier(answer(tt.answer)).Verify(context.Background(), "claim")
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, "verify", pe.Operation)
		})
	}

	_, err := NewVerifier(answer("{}")).Verify(context.Background(), "  ")
	assert.Error(t, err)
}

func TestVerify_ProviderFailure(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, operation("verify")).Return(nil, errors.New("deadline exceeded"))

	_, err := NewVerifier(gen).Verify(context.Background(), "claim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: verify claim")

	fb := FallbackVerification(err)
	assert.Equal(t, model.StatusPendingOutcome, fb.Status)
	assert.Zero(t, fb.Score)
	assert.True(t, strings.HasPrefix(fb.Explanation, "Verification failed: "))
	assert.Contains(t, fb.Explanation, "deadline exceeded")
	assert.NotNil(t, fb.MarketData)
}

func TestAppendSources(t *testing.T) {
	assert.Equal(t, "x", appendSources("x", nil))
	assert.Equal(t, "x", appendSources("x", []model.Source{{Title: "t"}}))
}
