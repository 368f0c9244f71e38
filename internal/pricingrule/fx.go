package pricingrule

import (
	"github.com/banadama/pricing/internal/pricingrule/repository"
	"github.com/banadama/pricing/internal/pricingrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricingrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewSnapshotter),
)
