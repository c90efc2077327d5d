package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/audit-engine/internal/config"
	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/model"
)

const (
	defaultDescription = "Verified Creator Profile."
	defaultNiche       = "Finance"
	avatarURLFormat    = "https://api.dicebear.com/7.x/initials/svg?seed=%s&backgroundColor=F1F5F9"
)

// ResolverConfig is the selection policy sent with every resolution.
type ResolverConfig struct {
	MinVideoMinutes int
	MinVideos       int
	MaxVideos       int
	LookbackMonths  int
}

// ResolverConfigFrom maps the pipeline config section.
func ResolverConfigFrom(cfg config.PipelineConfig) ResolverConfig {
	return ResolverConfig{
		MinVideoMinutes: cfg.MinVideoMinutes,
		MinVideos:       cfg.MinVideos,
		MaxVideos:       cfg.MaxVideos,
		LookbackMonths:  cfg.LookbackMonths,
	}
}

// Resolver turns a free-text query into a channel with candidate videos.
type Resolver struct {
	gen llm.Generator
	cfg ResolverConfig
	now func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(gen llm.Generator, cfg ResolverConfig) *Resolver {
	return &Resolver{gen: gen, cfg: cfg, now: time.Now}
}

type resolvedVideo struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

type resolvedChannel struct {
	Name        string          `json:"name"`
	Handle      string          `json:"handle"`
	Description string          `json:"description"`
	Niche       string          `json:"niche"`
	Videos      []resolvedVideo `json:"videos"`
}

// Resolve asks the grounded generator for the channel behind query. The
// result always has a non-empty name and handle.
func (r *Resolver) Resolve(ctx context.Context, query string) (*model.Channel, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, &ResolutionError{Reason: ReasonEmptyQuery}
	}

	log := zap.L().With(zap.String("query", query))

	resp, err := r.gen.Generate(ctx, llm.Request{
		Operation: "resolve",
		System:    resolveSystem,
		Prompt:    resolvePrompt(query, r.cfg),
		Tier:      llm.TierFast,
		Grounded:  true,
	})
	if err != nil {
		return nil, providerErr("resolve channel", err)
	}

	var data resolvedChannel
	cleaned := cleanJSON(resp.Text)
	if cleaned == "" {
		return nil, &ResolutionError{Reason: ReasonParseFailure, Query: query, Err: &ParseError{Operation: "resolve", Raw: resp.Text, Err: errEmptyAnswer}}
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		log.Warn("pipeline: resolve answer is not valid JSON", zap.Error(err))
		return nil, &ResolutionError{Reason: ReasonParseFailure, Query: query, Err: &ParseError{Operation: "resolve", Raw: resp.Text, Err: err}}
	}

	ch := &model.Channel{
		Name:        strings.TrimSpace(data.Name),
		Handle:      strings.TrimSpace(data.Handle),
		Description: strings.TrimSpace(data.Description),
		Niche:       strings.TrimSpace(data.Niche),
	}
	if ch.Name == "" {
		ch.Name = query
	}
	if ch.Handle == "" {
		ch.Handle = SynthesizeHandle(query)
	} else {
		ch.Handle = model.AtHandle(ch.Handle)
	}
	if ch.Description == "" {
		ch.Description = defaultDescription
	}
	if ch.Niche == "" {
		ch.Niche = defaultNiche
	}
	ch.Avatar = AvatarURL(ch.Name)

	stamp := nextStamp(r.now())
	for _, v := range data.Videos {
		title, link := strings.TrimSpace(v.Title), strings.TrimSpace(v.URL)
		if title == "" || link == "" {
			continue
		}
		ch.Videos = append(ch.Videos, model.Video{
			ID:    fmt.Sprintf("v-%d-%d", len(ch.Videos), stamp),
			Title: title,
			Date:  strings.TrimSpace(v.Date),
			URL:   link,
		})
	}
	if len(ch.Videos) == 0 {
		log.Info("pipeline: no candidate videos", zap.String("handle", ch.Handle))
		return nil, &ResolutionError{Reason: ReasonNoContent, Query: query}
	}

	log.Info("pipeline: channel resolved",
		zap.String("handle", ch.Handle),
		zap.Int("videos", len(ch.Videos)),
		zap.Int("sources", len(resp.Sources)),
	)
	return ch, nil
}

// SynthesizeHandle derives a handle from a query: whitespace removed and
// "@" prepended unless already present.
func SynthesizeHandle(query string) string {
	h := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, normalizeQuery(query))
	return model.AtHandle(h)
}

// AvatarURL returns the deterministic initials avatar for a display name.
func AvatarURL(name string) string {
	return fmt.Sprintf(avatarURLFormat, url.QueryEscape(name))
}

// normalizeQuery folds compatibility forms (full-width "＠", ligatures) and
// trims surrounding space.
func normalizeQuery(q string) string {
	return strings.TrimSpace(norm.NFKC.String(q))
}

var (
	stampMu   sync.Mutex
	lastStamp int64
)

// nextStamp returns a process-wide strictly increasing value seeded from
// wall-clock milliseconds, so video IDs never repeat across calls.
func nextStamp(now time.Time) int64 {
	stampMu.Lock()
	defer stampMu.Unlock()
	s := now.UnixMilli()
	if s <= lastStamp {
		s = lastStamp + 1
	}
	lastStamp = s
	return s
}
