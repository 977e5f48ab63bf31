package migration

import (
	"context"

	"github.com/gymstack/gymstack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		return Run(context.Background(), conn, cfg.DB.Driver, log.Named("migration"))
	}),
)
