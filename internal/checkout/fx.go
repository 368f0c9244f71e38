package checkout

import (
	"github.com/banadama/pricing/internal/checkout/repository"
	"github.com/banadama/pricing/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
