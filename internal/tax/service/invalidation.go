package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/estate/internal/cache"
	"go.uber.org/zap"
)

// RuleInvalidationChannel carries the country code of every updated tax rule
// so each replica drops its cached copy.
const RuleInvalidationChannel = "estate:tax_rules:invalidated"

func (s *Service) broadcastInvalidation(ctx context.Context, countryCode string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, RuleInvalidationChannel, countryCode).Err(); err != nil {
		s.log.Warn("tax rule invalidation publish failed", zap.String("country_code", countryCode), zap.Error(err))
	}
}

// ListenForInvalidations subscribes to rule updates made by other replicas.
// It returns once the subscription is confirmed; stop closes it. Without
// redis there is nothing to listen to and stop is a no-op.
func (s *Service) ListenForInvalidations(ctx context.Context) (stop func() error, err error) {
	if s.redis == nil {
		return func() error { return nil }, nil
	}

	sub := s.redis.Subscribe(ctx, RuleInvalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			code := strings.ToUpper(strings.TrimSpace(msg.Payload))
			if code == "" {
				continue
			}
			s.rules.Delete(cache.Key("tax_rule", code))
			s.log.Debug("tax rule cache invalidated", zap.String("country_code", code))
		}
	}()

	return func() error {
		err := sub.Close()
		<-done
		return err
	}, nil
}
