package organization

import (
	"github.com/gymstack/gymstack/internal/organization/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.repository",
	fx.Provide(repository.Provide),
)
