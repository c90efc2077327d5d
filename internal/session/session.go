// Package session orchestrates one user's audit: search, confirm, extract
// per video and verify per claim, keeping all results in memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/lifecycle"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/monitoring"
	"github.com/sells-group/audit-engine/internal/pipeline"
	"github.com/sells-group/audit-engine/internal/registry"
)

var (
	ErrNoChannel      = errors.New("session: no detected channel to confirm")
	ErrNoCreator      = errors.New("session: no confirmed creator")
	ErrVideoNotFound  = errors.New("session: video not found")
	ErrAlreadyAudited = errors.New("session: video already audited")
	ErrClaimNotFound  = errors.New("session: claim not found")
	ErrNotVerifiable  = errors.New("session: claim is not pending verification")
	ErrUnknownSort    = errors.New("session: unknown sort")
)

// Resolver resolves a query to a channel.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*model.Channel, error)
}

// Extractor pulls claims out of a video.
type Extractor interface {
	Extract(ctx context.Context, title, videoURL string) (*pipeline.ExtractResult, error)
}

// Verifier checks one structured claim.
type Verifier interface {
	Verify(ctx context.Context, claim string) (*model.VerificationResult, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Resolver  Resolver
	Extractor Extractor
	Verifier  Verifier
	Registry  *registry.Registry
	Metrics   *monitoring.Metrics
	Timeouts  map[lifecycle.Class]time.Duration
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// LogType classifies a log entry.
type LogType string

const (
	LogInfo    LogType = "info"
	LogSuccess LogType = "success"
	LogError   LogType = "error"
)

// LogEntry is one line of the research console.
type LogEntry struct {
	Msg  string  `json:"msg"`
	Type LogType `json:"type"`
}

// ClaimSort orders the claim list.
type ClaimSort string

const (
	SortTimeline ClaimSort = "timeline"
	SortAccuracy ClaimSort = "accuracy"
)

// Profile is the confirmed creator view.
type Profile struct {
	Creator         model.Channel       `json:"creator"`
	Claims          []model.Claim       `json:"claims"`
	IsAnalysisHeavy bool                `json:"isAnalysisHeavy"`
	Stats           model.AccuracyStats `json:"stats"`
	Summary         *model.AuditSummary `json:"summary,omitempty"`
}

// AuditResult is the outcome of auditing one video.
type AuditResult struct {
	Video           model.Video         `json:"video"`
	Claims          []model.Claim       `json:"claims"`
	IsAnalysisHeavy bool                `json:"isAnalysisHeavy"`
	Summary         *model.AuditSummary `json:"summary,omitempty"`
	Log             []LogEntry          `json:"log"`
}

// Session holds one user's in-memory audit state.
type Session struct {
	ID string

	deps    Deps
	tracker *lifecycle.Tracker

	mu       sync.Mutex
	log      []LogEntry
	detected *model.Channel
	creator  *model.Channel
	claims   []model.Claim
	heavy    bool
	lastUsed time.Time
}

// New creates an empty session.
func New(id string, deps Deps) *Session {
	return &Session{
		ID:       id,
		deps:     deps,
		tracker:  lifecycle.NewTracker(deps.Timeouts),
		lastUsed: deps.now(),
	}
}

// Tracker exposes the request lifecycle for status views.
func (s *Session) Tracker() *lifecycle.Tracker { return s.tracker }

func (s *Session) addLog(typ LogType, format string, args ...any) {
	s.log = append(s.log, LogEntry{Msg: fmt.Sprintf(format, args...), Type: typ})
}

// Log returns a copy of the console log.
func (s *Session) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// Detected returns the channel found by the last search, if any.
func (s *Session) Detected() *model.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detected == nil {
		return nil
	}
	c := cloneChannel(*s.detected)
	return &c
}

// Search resolves query and records the channel as a recent search. A
// resolution failure is logged and returned; the session stays usable.
func (s *Session) Search(ctx context.Context, query string) (*model.Channel, error) {
	callCtx, finish, err := s.tracker.Begin(ctx, lifecycle.ClassResolve)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.log = nil
	s.detected = nil
	s.addLog(LogInfo, "Initializing research probe for: %s...", query)
	s.addLog(LogInfo, "Connecting to search grounding...")
	s.mu.Unlock()

	ch, err := s.deps.Resolver.Resolve(callCtx, query)
	finish(err)

	s.mu.Lock()
	if err != nil {
		if pipeline.IsConfigError(err) {
			s.addLog(LogError, "%s", err.Error())
		} else {
			s.addLog(LogError, "Error: %s", userMessage(err))
		}
		s.mu.Unlock()
		zap.L().Warn("session: resolve failed", zap.String("session", s.ID), zap.String("query", query), zap.Error(err))
		return nil, err
	}

	s.addLog(LogSuccess, "Identity confirmed: %s", ch.Name)
	s.addLog(LogInfo, "Scanning metadata for %s...", ch.Handle)
	s.addLog(LogSuccess, "Retrieved %d prediction-eligible videos.", len(ch.Videos))
	s.detected = ch
	c := cloneChannel(*ch)
	s.mu.Unlock()

	// The call context is cancelled by finish; registry I/O uses the caller's.
	if s.deps.Registry != nil {
		if err := s.deps.Registry.AddRecentSearch(ctx, c.ToRecentSearch()); err != nil {
			zap.L().Warn("session: save recent search", zap.String("handle", c.Handle), zap.Error(err))
		}
	}
	return &c, nil
}

// Confirm promotes the detected channel to the audited creator. When the
// same creator is confirmed again its claims are kept, and videos already
// audited stay marked by URL.
func (s *Session) Confirm(ctx context.Context) (*Profile, error) {
	s.mu.Lock()
	if s.detected == nil {
		s.mu.Unlock()
		return nil, ErrNoChannel
	}
	c := cloneChannel(*s.detected)
	if s.creator == nil || s.creator.Handle != c.Handle {
		s.claims = nil
		s.heavy = false
	} else {
		carryExtracted(s.creator.Videos, c.Videos)
	}
	s.creator = &c
	s.mu.Unlock()

	return s.Profile(ctx)
}

// Creator returns the confirmed creator, if any.
func (s *Session) Creator() *model.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creator == nil {
		return nil
	}
	c := cloneChannel(*s.creator)
	return &c
}

// Profile returns the confirmed creator with its claims in timeline order.
func (s *Session) Profile(ctx context.Context) (*Profile, error) {
	s.mu.Lock()
	if s.creator == nil {
		s.mu.Unlock()
		return nil, ErrNoCreator
	}
	p := &Profile{
		Creator:         cloneChannel(*s.creator),
		Claims:          slices.Clone(s.claims),
		IsAnalysisHeavy: s.heavy,
		Stats:           model.ComputeAccuracy(s.claims),
	}
	s.mu.Unlock()

	if p.Claims == nil {
		p.Claims = []model.Claim{}
	}
	if s.deps.Registry != nil {
		sum, err := s.deps.Registry.AuditSummary(ctx, p.Creator.Handle)
		if err != nil {
			zap.L().Warn("session: load audit summary", zap.String("handle", p.Creator.Handle), zap.Error(err))
		}
		p.Summary = sum
	}
	return p, nil
}

// AuditVideo extracts claims from one of the creator's videos and records
// the creator's cumulative claim count in the registry. A failed registry
// write is logged and leaves Summary nil; the claims are kept.
func (s *Session) AuditVideo(ctx context.Context, videoID string) (*AuditResult, error) {
	s.mu.Lock()
	if s.creator == nil {
		s.mu.Unlock()
		return nil, ErrNoCreator
	}
	idx := slices.IndexFunc(s.creator.Videos, func(v model.Video) bool { return v.ID == videoID })
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrVideoNotFound
	}
	video := s.creator.Videos[idx]
	handle := s.creator.Handle
	s.mu.Unlock()

	if video.ClaimsExtracted {
		return nil, ErrAlreadyAudited
	}

	callCtx, finish, err := s.tracker.Begin(ctx, lifecycle.ClassExtract)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Extractor.Extract(callCtx, video.Title, video.URL)
	finish(err)

	s.mu.Lock()
	if err != nil {
		if pipeline.IsConfigError(err) {
			s.addLog(LogError, "%s", err.Error())
		} else {
			s.addLog(LogError, "Extraction failed for %q: %s", video.Title, userMessage(err))
		}
		s.mu.Unlock()
		zap.L().Warn("session: extract failed", zap.String("session", s.ID), zap.String("video", video.Title), zap.Error(err))
		return nil, err
	}

	// The creator may have been replaced or re-confirmed while the call
	// was in flight, so the video is looked up again.
	if s.creator == nil || s.creator.Handle != handle {
		s.mu.Unlock()
		return nil, ErrNoCreator
	}
	idx = s.videoIndex(video)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrVideoNotFound
	}
	if s.creator.Videos[idx].ClaimsExtracted {
		s.mu.Unlock()
		return nil, ErrAlreadyAudited
	}

	newClaims := res.ToClaims(handle, s.creator.Videos[idx])
	s.claims = append(s.claims, newClaims...)
	s.creator.Videos[idx].ClaimsExtracted = true
	s.heavy = s.heavy || res.IsAnalysisHeavy
	if len(newClaims) == 0 {
		s.addLog(LogInfo, "No verifiable predictions found in %q.", video.Title)
	} else {
		s.addLog(LogSuccess, "Extracted %d claims from %q.", len(newClaims), video.Title)
	}
	all := slices.Clone(s.claims)
	out := &AuditResult{
		Video:           s.creator.Videos[idx],
		Claims:          slices.Clone(newClaims),
		IsAnalysisHeavy: res.IsAnalysisHeavy,
	}
	s.mu.Unlock()

	if out.Claims == nil {
		out.Claims = []model.Claim{}
	}
	s.deps.Metrics.AddClaimsExtracted(len(newClaims))

	if s.deps.Registry != nil {
		sum, err := s.deps.Registry.RecordAudit(ctx, handle, all, s.deps.now())
		if err != nil {
			zap.L().Error("session: record audit", zap.String("handle", handle), zap.Error(err))
			s.mu.Lock()
			s.addLog(LogError, "Could not save audit history for %s.", handle)
			s.mu.Unlock()
		} else {
			out.Summary = &sum
		}
	}
	out.Log = s.Log()
	return out, nil
}

// videoIndex finds v in the creator's current video list. IDs are assigned
// per resolution, so the URL is matched first. Callers hold s.mu.
func (s *Session) videoIndex(v model.Video) int {
	if v.URL != "" {
		return slices.IndexFunc(s.creator.Videos, func(c model.Video) bool { return c.URL == v.URL })
	}
	return slices.IndexFunc(s.creator.Videos, func(c model.Video) bool { return c.ID == v.ID })
}

// VerifyClaim verifies a pending claim. A failed verification is recorded
// as FallbackVerification instead of an error; only configuration errors
// are returned.
func (s *Session) VerifyClaim(ctx context.Context, claimID string) (*model.Claim, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.claims, func(c model.Claim) bool { return c.ID == claimID })
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrClaimNotFound
	}
	claim := s.claims[idx]
	s.mu.Unlock()

	if !claim.Verifiable() {
		return nil, ErrNotVerifiable
	}

	callCtx, finish, err := s.tracker.Begin(ctx, lifecycle.ClassVerify)
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Verifier.Verify(callCtx, claim.StructuredClaim)
	finish(err)

	if err != nil {
		if pipeline.IsConfigError(err) {
			s.mu.Lock()
			s.addLog(LogError, "%s", err.Error())
			s.mu.Unlock()
			return nil, err
		}
		zap.L().Warn("session: verification failed, recording fallback",
			zap.String("claim", claimID), zap.Error(err))
		fb := pipeline.FallbackVerification(err)
		res = &fb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx = slices.IndexFunc(s.claims, func(c model.Claim) bool { return c.ID == claimID })
	if idx < 0 {
		return nil, ErrClaimNotFound
	}
	s.claims[idx].Apply(*res)
	if err != nil {
		s.addLog(LogError, "Verification failed for %q.", claim.Asset)
	} else {
		s.addLog(LogSuccess, "Verified %s: %s.", claim.Asset, res.Status)
	}
	s.deps.Metrics.ObserveVerification(string(res.Status))

	out := s.claims[idx]
	return &out, nil
}

// Claims returns the creator's claims in the requested order.
func (s *Session) Claims(sort ClaimSort) ([]model.Claim, error) {
	s.mu.Lock()
	out := slices.Clone(s.claims)
	s.mu.Unlock()
	if out == nil {
		out = []model.Claim{}
	}

	switch sort {
	case "", SortTimeline:
	case SortAccuracy:
		slices.SortStableFunc(out, func(a, b model.Claim) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			}
			return 0
		})
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSort, sort)
	}
	return out, nil
}

// Claim returns one claim by ID.
func (s *Session) Claim(id string) (model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Claim{}, ErrClaimNotFound
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// userMessage is the short form of err shown in the console.
func userMessage(err error) string {
	var re *pipeline.ResolutionError
	if errors.As(err, &re) {
		return re.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, lifecycle.ErrTimedOut) {
		return "the request timed out, please try again"
	}
	return err.Error()
}

// carryExtracted marks videos in next that were already audited in prev,
// matched by URL.
func carryExtracted(prev, next []model.Video) {
	done := make(map[string]bool, len(prev))
	for _, v := range prev {
		if v.ClaimsExtracted && v.URL != "" {
			done[v.URL] = true
		}
	}
	for i := range next {
		if done[next[i].URL] {
			next[i].ClaimsExtracted = true
		}
	}
}

func cloneChannel(c model.Channel) model.Channel {
	c.Videos = slices.Clone(c.Videos)
	return c
}
