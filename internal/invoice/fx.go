package invoice

import (
	"github.com/smallbiznis/estate/internal/invoice/domain"
	"github.com/smallbiznis/estate/internal/invoice/render"
	"github.com/smallbiznis/estate/internal/invoice/repository"
	"github.com/smallbiznis/estate/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(render.NewRenderer),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
