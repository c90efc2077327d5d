package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/audit-engine/internal/config"
	"github.com/sells-group/audit-engine/internal/monitoring"
	"github.com/sells-group/audit-engine/internal/resilience"
)

// GuardConfig controls rate limiting, retries and the circuit breaker
// around a provider.
type GuardConfig struct {
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
	Circuit    resilience.CircuitBreakerConfig
	Metrics    *monitoring.Metrics
}

// GuardConfigFromConfig maps the llm config section.
func GuardConfigFromConfig(cfg *config.Config, m *monitoring.Metrics) GuardConfig {
	return GuardConfig{
		RatePerSec: cfg.LLM.RateLimitPerSec,
		Burst:      cfg.LLM.RateBurst,
		Retry:      resilience.RetryFromConfig(cfg.LLM.Retry),
		Circuit:    resilience.CircuitFromConfig(cfg.LLM.Circuit),
		Metrics:    m,
	}
}

// Guard wraps a Generator with a token-bucket limiter, retry policy and
// circuit breaker, and records every attempt.
type Guard struct {
	next    Generator
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	metrics *monitoring.Metrics
}

// NewGuard wraps next. A non-positive rate disables limiting.
func NewGuard(next Generator, cfg GuardConfig) *Guard {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	name := next.Name()
	circuit := cfg.Circuit
	userHook := circuit.OnStateChange
	circuit.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("llm: circuit state change",
			zap.String("provider", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		cfg.Metrics.SetCircuitState(name, int(to))
		if userHook != nil {
			userHook(from, to)
		}
	}

	return &Guard{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker(circuit),
		retry:   cfg.Retry,
		metrics: cfg.Metrics,
	}
}

// Name returns the wrapped provider's name.
func (g *Guard) Name() string { return g.next.Name() }

// Breaker exposes the circuit breaker state for health reporting.
func (g *Guard) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Generate runs the wrapped call under the guard's policies.
func (g *Guard) Generate(ctx context.Context, req Request) (*Response, error) {
	retry := g.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(g.Name(), req.Operation)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limit wait")
		}

		start := time.Now()
		resp, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
			return g.next.Generate(ctx, req)
		})
		elapsed := time.Since(start)
		g.metrics.ObserveLLM(g.Name(), req.Operation, elapsed, err)

		if err != nil {
			zap.L().Debug("llm: call failed",
				zap.String("provider", g.Name()),
				zap.String("operation", req.Operation),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			return nil, err
		}
		zap.L().Debug("llm: call complete",
			zap.String("provider", resp.Provider),
			zap.String("model", resp.Model),
			zap.String("operation", req.Operation),
			zap.Duration("elapsed", elapsed),
			zap.Int("sources", len(resp.Sources)),
		)
		return resp, nil
	})
}

// Build constructs the configured provider wrapped in a Guard.
func Build(cfg *config.Config, m *monitoring.Metrics) (Generator, error) {
	gen, err := NewGenerator(FactoryFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewGuard(gen, GuardConfigFromConfig(cfg, m)), nil
}
