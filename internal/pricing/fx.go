package pricing

import (
	"github.com/banadama/pricing/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.engine",
	fx.Provide(service.New),
)
