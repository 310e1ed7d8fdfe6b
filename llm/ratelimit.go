package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an upstream provider. The limiter is shared
// by every request that uses the same client.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

func NewRateLimited(next Client, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", Classify(fmt.Errorf("wait for rate limiter: %w", err))
	}
	return r.next.Generate(ctx, messages)
}

var _ Client = (*RateLimited)(nil)
