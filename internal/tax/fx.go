package tax

import (
	"context"

	"github.com/smallbiznis/estate/internal/tax/domain"
	"github.com/smallbiznis/estate/internal/tax/repository"
	"github.com/smallbiznis/estate/internal/tax/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.Calculator { return s },
	),
	fx.Invoke(registerInvalidationListener),
)

func registerInvalidationListener(lc fx.Lifecycle, svc *service.Service, log *zap.Logger) {
	var stop func() error
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			stop, err = svc.ListenForInvalidations(context.Background())
			if err != nil {
				// rules still expire from the local cache on their TTL
				log.Warn("tax rule invalidation listener not started", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			if stop == nil {
				return nil
			}
			return stop()
		},
	})
}
