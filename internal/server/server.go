// Package server exposes sessions and the registry over an HTTP JSON API.
package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/monitoring"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/internal/session"
)

// Session transport names.
const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "audit_session"
)

// Options configures a Server.
type Options struct {
	Sessions       *session.Manager
	Registry       *registry.Registry
	Metrics        *monitoring.Metrics
	AllowedOrigins []string
}

// Server routes API requests to sessions.
type Server struct {
	sessions *session.Manager
	registry *registry.Registry
	metrics  *monitoring.Metrics
	origins  []string
}

// New creates a Server.
func New(opts Options) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		sessions: opts.Sessions,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		origins:  origins,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", SessionHeader},
		ExposedHeaders:   []string{SessionHeader},
		AllowCredentials: !slices.Contains(s.origins, "*"),
		MaxAge:           86400,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/featured", s.handleFeatured)
		r.Get("/registry", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/session", s.handleSession)
			r.Post("/search", s.handleSearch)
			r.Post("/channel/confirm", s.handleConfirm)
			r.Get("/creators/{handle}", s.handleCreator)
			r.Post("/videos/{id}/audit", s.handleAudit)
			r.Get("/claims", s.handleClaims)
			r.Get("/claims/{id}", s.handleClaim)
			r.Post("/claims/{id}/verify", s.handleVerify)
			r.Get("/claims/{id}/chart.png", s.handleChart)
			r.Get("/registry/export.xlsx", s.handleExport)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type sessionKey struct{}

// withSession attaches the caller's session, creating one when the header
// and cookie are missing or name an expired session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = c.Value
			}
		}

		sess, created, err := s.sessions.GetOrCreate(id)
		if err != nil {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusServiceUnavailable, "session_limit", err.Error())
			return
		}
		if created {
			zap.L().Debug("server: new session", zap.String("session", sess.ID))
		}
		w.Header().Set(SessionHeader, sess.ID)
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return sess
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
