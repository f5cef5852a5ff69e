package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/estate/internal/config"
)

const keyPublicPreview = "estate:ratelimit:public:%s"

// PublicLimiter throttles anonymous preview endpoints per client IP.
type PublicLimiter struct {
	bucket  *TokenBucket
	pricing *config.PricingConfigHolder
}

// NewPublicLimiter returns nil when redis is not configured; a nil limiter
// allows every request.
func NewPublicLimiter(client *redis.Client, pricing *config.PricingConfigHolder) *PublicLimiter {
	if client == nil {
		return nil
	}
	return &PublicLimiter{bucket: NewTokenBucket(client), pricing: pricing}
}

func (l *PublicLimiter) Enabled() bool {
	if l == nil {
		return false
	}
	limit := l.pricing.Get().PublicRateLimit
	return limit.Rate > 0 && limit.Burst > 0
}

func (l *PublicLimiter) Allow(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limit := l.pricing.Get().PublicRateLimit
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPublicPreview, strings.TrimSpace(clientIP)), limit.Rate, limit.Burst)
}
