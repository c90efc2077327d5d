package llm

import (
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-engine/internal/config"
)

// FactoryConfig captures the inputs required to construct a provider.
type FactoryConfig struct {
	Provider  string
	Key       string
	EnvVar    string
	BaseURL   string
	FastModel string
	DeepModel string
	MaxTokens int
}

// ProviderFactory builds a Generator for one provider.
type ProviderFactory func(FactoryConfig) (Generator, error)

var (
	mu         sync.RWMutex
	providers  = map[string]ProviderFactory{}
	defaultKey = "gemini"
)

// RegisterProvider registers a provider factory under one or more names.
func RegisterProvider(name string, factory ProviderFactory, aliases ...string) {
	mu.Lock()
	defer mu.Unlock()

	for _, n := range append([]string{name}, aliases...) {
		providers[strings.ToLower(n)] = factory
	}
}

// Providers lists the registered provider names.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(providers))
	for n := range providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NewGenerator returns the Generator for cfg.Provider. A missing key does
// not fail construction; the returned Generator fails every call with a
// CredentialError instead.
func NewGenerator(cfg FactoryConfig) (Generator, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = defaultKey
	}

	mu.RLock()
	factory := providers[name]
	mu.RUnlock()

	if factory == nil {
		return nil, eris.Errorf("llm: provider %q not registered", name)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return missingKey{err: &CredentialError{Provider: name, EnvVar: cfg.EnvVar}}, nil
	}
	cfg.Provider = name
	return factory(cfg)
}

// FactoryFromConfig maps application config to the selected provider's
// factory inputs.
func FactoryFromConfig(cfg *config.Config) FactoryConfig {
	key, env := cfg.ProviderKey()
	fc := FactoryConfig{Provider: cfg.LLM.Provider, Key: key, EnvVar: env}
	switch strings.ToLower(cfg.LLM.Provider) {
	case "perplexity":
		fc.BaseURL = cfg.Perplexity.BaseURL
		fc.FastModel = cfg.Perplexity.Model
		fc.DeepModel = cfg.Perplexity.Model
	case "anthropic":
		fc.FastModel = cfg.Anthropic.HaikuModel
		fc.DeepModel = cfg.Anthropic.SonnetModel
		fc.MaxTokens = cfg.Anthropic.MaxTokens
	default:
		fc.BaseURL = cfg.Gemini.BaseURL
		fc.FastModel = cfg.Gemini.FastModel
		fc.DeepModel = cfg.Gemini.DeepModel
	}
	return fc
}

func (fc FactoryConfig) model(t Tier) string {
	if t == TierDeep && fc.DeepModel != "" {
		return fc.DeepModel
	}
	return fc.FastModel
}
