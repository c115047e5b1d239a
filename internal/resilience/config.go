package resilience

import (
	"time"

	"github.com/sells-group/acquisition-cli/internal/config"
)

// FromPlatformConfig builds the retry and breaker policies for the platform
// client. Zero values keep the defaults.
func FromPlatformConfig(cfg config.PlatformConfig) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}

	breaker := DefaultCircuitBreakerConfig()
	if cfg.CircuitThreshold > 0 {
		breaker.FailureThreshold = cfg.CircuitThreshold
	}
	if cfg.CircuitCoolDownSecs > 0 {
		breaker.CoolDown = time.Duration(cfg.CircuitCoolDownSecs) * time.Second
	}
	return retry, breaker
}
