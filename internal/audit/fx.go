package audit

import (
	"github.com/gymstack/gymstack/internal/audit/repository"
	"github.com/gymstack/gymstack/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewExportService),
)
