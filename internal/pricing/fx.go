package pricing

import (
	"github.com/smallbiznis/estate/internal/pricing/domain"
	"github.com/smallbiznis/estate/internal/pricing/repository"
	"github.com/smallbiznis/estate/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewEngine),
	fx.Provide(service.NewPlanService),
	fx.Provide(
		func(e *service.Engine) domain.Engine { return e },
		func(s *service.PlanService) domain.PlanService { return s },
	),
)
