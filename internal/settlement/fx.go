package settlement

import (
	"github.com/banadama/pricing/internal/settlement/repository"
	"github.com/banadama/pricing/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
