package membership

import (
	"github.com/gymstack/gymstack/internal/membership/repository"
	"github.com/gymstack/gymstack/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
