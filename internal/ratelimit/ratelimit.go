package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/newspaper/internal/logger"
)

// AIRateLimiter keeps a daily request budget per model and overall.
// A limit of 0 means unlimited.
type AIRateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	limits    map[string]int
	total     int
	maxTotal  int
	resetTime time.Time
	now       func() time.Time
}

// NewAIRateLimiter creates a limiter with per-model limits and a shared total.
func NewAIRateLimiter(limits map[string]int, maxTotal int) *AIRateLimiter {
	l := make(map[string]int, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &AIRateLimiter{
		counts:    make(map[string]int),
		limits:    l,
		maxTotal:  maxTotal,
		now:       time.Now,
		resetTime: time.Now().Add(24 * time.Hour), // Reset daily
	}
}

// CanUse reports whether a request for model would fit in the budget.
func (rl *AIRateLimiter) CanUse(model string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	return rl.check(model) == nil
}

// Use reserves one request for model.
func (rl *AIRateLimiter) Use(model string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	if err := rl.check(model); err != nil {
		logger.Warn("AI rate limit reached", "model", model, "used", rl.counts[model], "total", rl.total)
		return err
	}

	rl.counts[model]++
	rl.total++

	logger.Debug("AI usage", "model", model, "used", rl.counts[model], "limit", rl.limits[model], "total", rl.total, "total_limit", rl.maxTotal)
	return nil
}

func (rl *AIRateLimiter) check(model string) error {
	if limit := rl.limits[model]; limit > 0 && rl.counts[model] >= limit {
		return fmt.Errorf("%s rate limit exceeded (%d/%d)", model, rl.counts[model], limit)
	}
	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		return fmt.Errorf("total AI rate limit exceeded (%d/%d)", rl.total, rl.maxTotal)
	}
	return nil
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	used := make(map[string]int, len(rl.counts))
	for k, v := range rl.counts {
		used[k] = v
	}
	return map[string]interface{}{
		"used":        used,
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"reset_time":  rl.resetTime,
	}
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	now := rl.now()
	if now.After(rl.resetTime) {
		logger.Info("resetting AI rate limiter counters", "total_used", rl.total)

		rl.counts = make(map[string]int)
		rl.total = 0
		rl.resetTime = now.Add(24 * time.Hour)
	}
}
