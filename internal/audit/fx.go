package audit

import (
	"github.com/banadama/pricing/internal/audit/repository"
	"github.com/banadama/pricing/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
