package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/evidence"
	"github.com/sells-group/audit-engine/internal/export"
	"github.com/sells-group/audit-engine/internal/lifecycle"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/internal/session"
	"github.com/sells-group/audit-engine/pkg/youtube"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleFeatured(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.FeaturedChannels())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sort, err := registry.ParseLeaderboardSort(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_sort", err.Error())
		return
	}
	rows, err := s.registry.Leaderboard(r.Context(), sort)
	if err != nil {
		zap.L().Error("server: leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry", "registry unavailable")
		return
	}
	if rows == nil {
		rows = []registry.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type sessionView struct {
	ID       string            `json:"id"`
	Log      []session.LogEntry `json:"log"`
	Detected *model.Channel    `json:"detected,omitempty"`
	Creator  *model.Channel    `json:"creator,omitempty"`
	Requests map[string]string `json:"requests"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	reqs := make(map[string]string)
	for _, class := range []lifecycle.Class{lifecycle.ClassResolve, lifecycle.ClassExtract, lifecycle.ClassVerify} {
		reqs[string(class)] = sess.Tracker().State(class).String()
	}
	log := sess.Log()
	if log == nil {
		log = []session.LogEntry{}
	}
	writeJSON(w, http.StatusOK, sessionView{
		ID:       sess.ID,
		Log:      log,
		Detected: sess.Detected(),
		Creator:  sess.Creator(),
		Requests: reqs,
	})
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Channel *model.Channel     `json:"channel"`
	Log     []session.LogEntry `json:"log"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	ch, err := sess.Search(r.Context(), req.Query)
	if err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Channel: ch, Log: sess.Log()})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	p, err := sess.Confirm(r.Context())
	if err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// seededProfile is the read-only profile of a seeded creator.
type seededProfile struct {
	Creator model.Creator       `json:"creator"`
	Claims  []model.Claim       `json:"claims"`
	Stats   model.AccuracyStats `json:"stats"`
	Summary *model.AuditSummary `json:"summary,omitempty"`
	Seeded  bool                `json:"seeded"`
}

func (s *Server) handleCreator(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	handle := model.BareHandle(chi.URLParam(r, "handle"))

	if c := sess.Creator(); c != nil && strings.EqualFold(c.BareHandle(), handle) {
		p, err := sess.Profile(r.Context())
		if err != nil {
			writeSessionError(w, sess, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	rec, err := s.registry.SeededAudit(r.Context(), handle)
	if err != nil {
		zap.L().Error("server: load seeded audit", zap.String("handle", handle), zap.Error(err))
	}
	if rec == nil {
		writeRedirect(w, "creator not found")
		return
	}
	sum, err := s.registry.AuditSummary(r.Context(), rec.Creator.Handle)
	if err != nil {
		zap.L().Warn("server: load audit summary", zap.String("handle", handle), zap.Error(err))
	}
	claims := rec.Claims
	if claims == nil {
		claims = []model.Claim{}
	}
	writeJSON(w, http.StatusOK, seededProfile{
		Creator: rec.Creator,
		Claims:  claims,
		Stats:   model.ComputeAccuracy(claims),
		Summary: sum,
		Seeded:  true,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	res, err := sess.AuditVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	claims, err := sess.Claims(session.ClaimSort(r.URL.Query().Get("sort")))
	if err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	c, err := sess.VerifyClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// claimDetail is a claim with its evidence links.
type claimDetail struct {
	Claim        model.Claim         `json:"claim"`
	EmbedURL     string              `json:"embedUrl"`
	DeepLink     string              `json:"deepLink"`
	StartSeconds int                 `json:"startSeconds"`
	Movement     *evidence.PriceMove `json:"movement,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupClaim(r)
	if !ok {
		writeRedirect(w, "claim not found")
		return
	}
	d := claimDetail{
		Claim:        c,
		EmbedURL:     youtube.EmbedURL(c.VideoURL, c.Timestamp),
		DeepLink:     youtube.DeepLink(c.VideoURL, c.Timestamp),
		StartSeconds: youtube.ParseTimestamp(c.Timestamp),
	}
	if m, err := evidence.Movement(c.MarketData); err == nil {
		d.Movement = m
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupClaim(r)
	if !ok {
		writeRedirect(w, "claim not found")
		return
	}
	var buf bytes.Buffer
	if err := evidence.RenderChart(&buf, c); err != nil {
		if errors.Is(err, evidence.ErrNotEnoughPoints) {
			writeError(w, http.StatusNotFound, "no_chart", "not enough market data to chart")
			return
		}
		zap.L().Error("server: render chart", zap.String("claim", c.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chart", "chart rendering failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// lookupClaim finds a claim in the session first, then among seeded
// records.
func (s *Server) lookupClaim(r *http.Request) (model.Claim, bool) {
	id := chi.URLParam(r, "id")
	if c, err := sessionFrom(r).Claim(id); err == nil {
		return c, true
	}
	ds, err := s.registry.SeededAudits(r.Context())
	if err != nil {
		zap.L().Warn("server: load seeded audits", zap.Error(err))
		return model.Claim{}, false
	}
	for _, c := range export.SeededClaims(ds) {
		if c.ID == id {
			return c, true
		}
	}
	return model.Claim{}, false
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := s.registry.Leaderboard(ctx, registry.SortRecent)
	if err != nil {
		zap.L().Error("server: export leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry", "registry unavailable")
		return
	}
	ds, err := s.registry.SeededAudits(ctx)
	if err != nil {
		zap.L().Error("server: export seeded audits", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry", "registry unavailable")
		return
	}

	claims := export.SeededClaims(ds)
	own, _ := sessionFrom(r).Claims(session.SortTimeline)
	claims = append(claims, own...)

	var buf bytes.Buffer
	if err := export.Write(&buf, rows, claims); err != nil {
		zap.L().Error("server: export workbook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export", "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-registry.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}
