package thinrsbus

import (
	"math"
	"math/rand"
	"time"
)

// ComputeDelay returns how long to wait before recreation attempt `attempt`.
//
// Formula: min(base * 2^(attempt-1) + jitter, max)
// - attempt is 1-indexed; attempt <= 0 is treated as 1
// - jitter is a random value in [0, base) when enabled
func ComputeDelay(attempt int, cfg SupervisorConfig) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := float64(cfg.BaseDelayMs) * math.Pow(2, float64(attempt-1))

	if cfg.Jitter && cfg.BaseDelayMs > 0 {
		delay += rand.Float64() * float64(cfg.BaseDelayMs)
	}

	if delay > float64(cfg.MaxDelayMs) {
		delay = float64(cfg.MaxDelayMs)
	}

	return time.Duration(delay) * time.Millisecond
}
