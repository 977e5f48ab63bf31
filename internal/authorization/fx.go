package authorization

import "go.uber.org/fx"

var Module = fx.Module("authorization",
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Authorizer { return s }),
)
