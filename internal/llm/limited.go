package llm

import (
	"context"
	"fmt"

	"github.com/deusflow/newspaper/internal/ratelimit"
)

// Limited rejects requests once the model's daily budget is spent.
type Limited struct {
	next    Invoker
	limiter *ratelimit.AIRateLimiter
}

func NewLimited(next Invoker, limiter *ratelimit.AIRateLimiter) *Limited {
	return &Limited{next: next, limiter: limiter}
}

func (l *Limited) Invoke(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Use(req.Model); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return l.next.Invoke(ctx, req)
}
