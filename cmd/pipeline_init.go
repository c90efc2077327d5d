package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/llm"
	"github.com/sells-group/audit-engine/internal/monitoring"
	"github.com/sells-group/audit-engine/internal/pipeline"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/internal/store"
)

// auditEnv holds the store, registry and pipeline stages needed by the
// serve, audit and single-stage commands.
type auditEnv struct {
	KV        store.KV // nil for commands that never persist
	Registry  *registry.Registry
	Metrics   *monitoring.Metrics
	Generator llm.Generator
	Resolver  *pipeline.Resolver
	Extractor *pipeline.Extractor
	Verifier  *pipeline.Verifier
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.KV != nil {
		_ = e.KV.Close()
	}
}

// initRegistry opens the configured store and wraps it in a Registry.
// Callers should close the returned store.
func initRegistry(ctx context.Context) (store.KV, *registry.Registry, error) {
	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open store")
	}
	return kv, registry.New(kv, cfg.Registry), nil
}

// initPipeline validates the provider settings and builds the pipeline.
// When persist is set the registry is opened as well. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, persist bool, metrics *monitoring.Metrics) (*auditEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}
	return buildPipeline(ctx, persist, metrics)
}

// buildPipeline skips validation. A provider without credentials still
// builds and fails each call with a configuration error.
func buildPipeline(ctx context.Context, persist bool, metrics *monitoring.Metrics) (*auditEnv, error) {
	gen, err := llm.Build(cfg, metrics)
	if err != nil {
		return nil, eris.Wrap(err, "build llm provider")
	}
	zap.L().Debug("llm provider ready", zap.String("provider", gen.Name()))

	env := &auditEnv{
		Metrics:   metrics,
		Generator: gen,
		Resolver:  pipeline.NewResolver(gen, pipeline.ResolverConfigFrom(cfg.Pipeline)),
		Extractor: pipeline.NewExtractor(gen, cfg.Pipeline.AnalysisHeavyThreshold),
		Verifier:  pipeline.NewVerifier(gen),
	}

	if persist {
		kv, reg, err := initRegistry(ctx)
		if err != nil {
			return nil, err
		}
		env.KV, env.Registry = kv, reg
	}
	return env, nil
}
