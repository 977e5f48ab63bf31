package discount

import (
	"github.com/gymstack/gymstack/internal/discount/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.repository",
	fx.Provide(repository.Provide),
)
