package pendingintent

import (
	"github.com/gymstack/gymstack/internal/clock"
	"github.com/gymstack/gymstack/internal/config"
	"github.com/gymstack/gymstack/internal/pendingintent/redisstore"
	"github.com/gymstack/gymstack/internal/pendingintent/sessionstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pendingintent",
	fx.Provide(redisstore.New),
	fx.Provide(func(cfg config.Config, clk clock.Clock) (*sessionstore.Store, error) {
		return sessionstore.New(cfg.SessionStoreSize, clk)
	}),
	fx.Provide(ProvideChain),
)

func ProvideChain(cfg config.Config, clk clock.Clock, log *zap.Logger, durable *redisstore.Store, session *sessionstore.Store) *Chain {
	return NewChain(cfg.PendingIntentTTL, clk, log, durable, session)
}
