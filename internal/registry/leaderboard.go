package registry

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-engine/internal/model"
)

// LeaderboardSort orders leaderboard rows.
type LeaderboardSort string

const (
	SortRecent   LeaderboardSort = "recent"
	SortAccuracy LeaderboardSort = "accuracy"
	SortClaims   LeaderboardSort = "claims"
)

// ParseLeaderboardSort maps "" to SortRecent and rejects unknown values.
func ParseLeaderboardSort(s string) (LeaderboardSort, error) {
	switch LeaderboardSort(s) {
	case "", SortRecent:
		return SortRecent, nil
	case SortAccuracy, SortClaims:
		return LeaderboardSort(s), nil
	}
	return "", eris.Errorf("registry: unknown sort %q", s)
}

// Row is one creator on the leaderboard.
type Row struct {
	Handle  string              `json:"handle"`
	Name    string              `json:"name"`
	Avatar  string              `json:"avatar"`
	Niche   string              `json:"niche,omitempty"`
	Summary *model.AuditSummary `json:"summary,omitempty"`
	// Stats is set only when a seeded record with claims exists.
	Stats *model.AccuracyStats `json:"stats,omitempty"`

	recentRank int
}

// Leaderboard lists every creator known from recent searches, audit history
// or seeded audits.
func (r *Registry) Leaderboard(ctx context.Context, sort LeaderboardSort) ([]Row, error) {
	recent, err := r.RecentSearches(ctx)
	if err != nil {
		return nil, err
	}
	hist, err := r.AuditHistory(ctx)
	if err != nil {
		return nil, err
	}
	seeded, err := r.SeededAudits(ctx)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*Row)
	row := func(handle string) *Row {
		handle = model.AtHandle(handle)
		if rw, ok := rows[handle]; ok {
			return rw
		}
		rw := &Row{Handle: handle, recentRank: len(recent)}
		rows[handle] = rw
		return rw
	}

	for i, e := range recent {
		rw := row(e.ID)
		rw.Name, rw.Avatar, rw.recentRank = e.Name, e.Avatar, i
	}
	for _, rec := range seeded {
		rw := row(rec.Creator.Handle)
		if rw.Name == "" {
			rw.Name, rw.Avatar = rec.Creator.Name, rec.Creator.Avatar
		}
		rw.Niche = rec.Creator.Niche
		if len(rec.Claims) > 0 {
			stats := model.ComputeAccuracy(rec.Claims)
			rw.Stats = &stats
		}
	}
	for handle, s := range hist {
		rw := row(handle)
		rw.Summary = &s
		if rw.Name == "" {
			rw.Name = model.BareHandle(handle)
		}
	}

	out := make([]Row, 0, len(rows))
	for _, rw := range rows {
		out = append(out, *rw)
	}
	slices.SortFunc(out, rowLess(sort))
	return out, nil
}

func rowLess(sort LeaderboardSort) func(a, b Row) int {
	byHandle := func(a, b Row) int { return cmp.Compare(a.Handle, b.Handle) }
	switch sort {
	case SortAccuracy:
		return func(a, b Row) int {
			return cmp.Or(
				-cmp.Compare(accuracy(a), accuracy(b)),
				cmp.Compare(a.recentRank, b.recentRank),
				byHandle(a, b),
			)
		}
	case SortClaims:
		return func(a, b Row) int {
			return cmp.Or(
				-cmp.Compare(claimCount(a), claimCount(b)),
				cmp.Compare(a.recentRank, b.recentRank),
				byHandle(a, b),
			)
		}
	}
	return func(a, b Row) int {
		return cmp.Or(
			cmp.Compare(a.recentRank, b.recentRank),
			-cmp.Compare(lastAudited(a), lastAudited(b)),
			byHandle(a, b),
		)
	}
}

// accuracy is -1 for rows without stats so they sort last.
func accuracy(r Row) float64 {
	if r.Stats == nil {
		return -1
	}
	return r.Stats.AvgAccuracy
}

func claimCount(r Row) int {
	if r.Summary == nil {
		return 0
	}
	return r.Summary.Count
}

func lastAudited(r Row) string {
	if r.Summary == nil {
		return ""
	}
	return r.Summary.LastAudited
}
