package model

// Audit summary statuses.
const (
	AuditStatusAudited  = "Audited"
	AuditStatusNoClaims = "No Claims"
	AuditStatusSeeded   = "Seeded"
)

// AuditSummary is the per-channel audit state shown on listing pages.
type AuditSummary struct {
	Count       int    `json:"count"`
	LastAudited string `json:"lastAudited"`
	Status      string `json:"status"`
}

// Creator describes a channel in seeded records and leaderboard rows.
type Creator struct {
	Name        string `json:"name" yaml:"name"`
	Handle      string `json:"handle" yaml:"handle"`
	Avatar      string `json:"avatar" yaml:"avatar"`
	Description string `json:"description" yaml:"description"`
	Niche       string `json:"niche" yaml:"niche"`
}

// SeededAudit is a canned audit record used by pre-seeded deployments.
type SeededAudit struct {
	Creator Creator `json:"creator" yaml:"creator"`
	Claims  []Claim `json:"claims" yaml:"claims"`
}

// AccuracyStats aggregates verified claims for a creator.
type AccuracyStats struct {
	AvgAccuracy       float64 `json:"avgAccuracy"`
	TotalPredictions  int     `json:"totalPredictions"`
	UnverifiableCount int     `json:"unverifiableCount"`
}

// ComputeAccuracy averages scores over claims with a definitive verdict.
// Claims still pending verification or awaiting an outcome count as
// unverifiable.
func ComputeAccuracy(claims []Claim) AccuracyStats {
	stats := AccuracyStats{TotalPredictions: len(claims)}
	var sum float64
	var scored int
	for _, c := range claims {
		switch c.Status {
		case StatusAccurate, StatusPartiallyAccurate, StatusInaccurate:
			sum += c.Score
			scored++
		default:
			stats.UnverifiableCount++
		}
	}
	if scored > 0 {
		stats.AvgAccuracy = sum / float64(scored)
	}
	return stats
}
