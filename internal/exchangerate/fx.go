package exchangerate

import (
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
	"github.com/smallbiznis/estate/internal/exchangerate/repository"
	"github.com/smallbiznis/estate/internal/exchangerate/service"
	"github.com/smallbiznis/estate/internal/exchangerate/source"
	"go.uber.org/fx"
)

var Module = fx.Module("exchangerate",
	fx.Provide(repository.Provide),
	fx.Provide(source.New),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Provider { return s }),
)
