package resilience

import (
	"time"

	"github.com/sells-group/audit-engine/internal/config"
)

// RetryFromConfig maps the llm.retry section. Unset fields keep
// DefaultRetryConfig values.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	out := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		out.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		out.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		out.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return out
}

// CircuitFromConfig maps the llm.circuit section.
func CircuitFromConfig(c config.CircuitConfig) CircuitBreakerConfig {
	out := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		out.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		out.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return out
}
