package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerificationStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ClaimStatus
		ok   bool
	}{
		{"Accurate", StatusAccurate, true},
		{"partially accurate", StatusPartiallyAccurate, true},
		{" INACCURATE ", StatusInaccurate, true},
		{"Pending Outcome", StatusPendingOutcome, true},
		{"Pending Verification", "", false},
		{"Valid", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseVerificationStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimStatus_IsVerification(t *testing.T) {
	for _, s := range VerificationStatuses() {
		assert.True(t, s.IsVerification(), s)
	}
	assert.False(t, StatusPendingVerification.IsVerification())
	assert.Len(t, VerificationStatuses(), 4)
}

func TestNewPendingClaim(t *testing.T) {
	video := Video{ID: "v-0-1", Title: "Nifty outlook", Date: "2024-03-01", URL: "https://youtu.be/abcdefghijk"}
	c := NewPendingClaim("@AkshatZayn", video, "04:22", "Nifty will hit 25k", "NIFTY 50 to 25,000 by Dec 2024", "NIFTY 50")

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, StatusPendingVerification, c.Status)
	assert.Zero(t, c.Score)
	assert.Equal(t, "Nifty outlook", c.VideoTitle)
	assert.Equal(t, "2024-03-01", c.VideoDate)
	assert.Equal(t, video.URL, c.VideoURL)
	assert.True(t, c.Verifiable())

	other := NewPendingClaim("@AkshatZayn", video, "04:22", "q", "s", "a")
	assert.NotEqual(t, c.ID, other.ID)
}

func TestClaim_Apply(t *testing.T) {
	c := Claim{Status: StatusPendingVerification}
	c.Apply(VerificationResult{
		Status:      StatusAccurate,
		Score:       0.9,
		Explanation: "hit in November",
		MarketData:  []MarketDataPoint{{Date: "2024-11-01", Price: "25,100", Asset: "NIFTY 50"}},
	})
	assert.Equal(t, StatusAccurate, c.Status)
	assert.InDelta(t, 0.9, c.Score, 0.0001)
	require.Len(t, c.MarketData, 1)
	assert.False(t, c.Verifiable())
}

func TestComputeAccuracy(t *testing.T) {
	claims := []Claim{
		{Status: StatusAccurate, Score: 1},
		{Status: StatusInaccurate, Score: 0},
		{Status: StatusPartiallyAccurate, Score: 0.5},
		{Status: StatusPendingOutcome},
		{Status: StatusPendingVerification},
	}
	stats := ComputeAccuracy(claims)
	assert.Equal(t, 5, stats.TotalPredictions)
	assert.Equal(t, 2, stats.UnverifiableCount)
	assert.InDelta(t, 0.5, stats.AvgAccuracy, 0.0001)

	assert.Zero(t, ComputeAccuracy(nil).AvgAccuracy)
}

func TestHandles(t *testing.T) {
	assert.Equal(t, "AkshatZayn", BareHandle("@AkshatZayn"))
	assert.Equal(t, "AkshatZayn", BareHandle("AkshatZayn"))
	assert.Equal(t, "@AkshatZayn", AtHandle("AkshatZayn"))
	assert.Equal(t, "@AkshatZayn", AtHandle("@AkshatZayn"))
	assert.Equal(t, "", AtHandle(""))

	ch := Channel{Name: "Akshat", Handle: "@AkshatZayn", Avatar: "a.svg"}
	assert.Equal(t, RecentSearch{ID: "@AkshatZayn", Name: "Akshat", Avatar: "a.svg"}, ch.ToRecentSearch())
	assert.Equal(t, "AkshatZayn", ch.BareHandle())
}
