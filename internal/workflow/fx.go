package workflow

import (
	"github.com/smallbiznis/estate/internal/workflow/domain"
	"github.com/smallbiznis/estate/internal/workflow/repository"
	"github.com/smallbiznis/estate/internal/workflow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workflow.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
