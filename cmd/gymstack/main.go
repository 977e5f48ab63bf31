package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gymstack/gymstack/internal/audit"
	"github.com/gymstack/gymstack/internal/authorization"
	"github.com/gymstack/gymstack/internal/billing"
	"github.com/gymstack/gymstack/internal/clock"
	"github.com/gymstack/gymstack/internal/config"
	"github.com/gymstack/gymstack/internal/discount"
	"github.com/gymstack/gymstack/internal/member"
	"github.com/gymstack/gymstack/internal/membership"
	"github.com/gymstack/gymstack/internal/migration"
	"github.com/gymstack/gymstack/internal/observability"
	"github.com/gymstack/gymstack/internal/organization"
	"github.com/gymstack/gymstack/internal/payment"
	"github.com/gymstack/gymstack/internal/pendingintent"
	"github.com/gymstack/gymstack/internal/plan"
	"github.com/gymstack/gymstack/internal/pricing"
	"github.com/gymstack/gymstack/internal/redis"
	"github.com/gymstack/gymstack/internal/scheduler"
	"github.com/gymstack/gymstack/internal/seed"
	"github.com/gymstack/gymstack/internal/server"
	"github.com/gymstack/gymstack/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "gymstack",
		Short:   "Gym membership lifecycle service",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd(), newSeedCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and activate the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and payment callback endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(serveOptions()).Run()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run background scheduler workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(
				coreOptions(),
				scheduler.Module,
				fx.Invoke(startScheduler),
			).Run()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then the API and the scheduler in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			fx.New(
				serveOptions(),
				scheduler.Module,
				fx.Invoke(startScheduler),
			).Run()
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var opts seed.Options
	var orgID int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo gym with plans, a discount and members",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OrgID = snowflake.ID(orgID)
			return runSeed(opts)
		},
	}
	cmd.Flags().Int64Var(&orgID, "org-id", 0, "organization id (generated when zero)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "organization name")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "IANA timezone for the organization")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "ISO currency code")
	return cmd
}

func runSeed(opts seed.Options) error {
	var (
		conn *gorm.DB
		node *snowflake.Node
		log  *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
		fx.Populate(&conn, &node, &log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	res, err := seed.EnsureDemoGym(ctx, conn, node, opts)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	log.Info("demo gym ready",
		zap.String("org_id", res.Organization.ID.String()),
		zap.Int("plans", len(res.Plans)),
		zap.Int("members", len(res.Members)),
	)
	return nil
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

// coreOptions wires the lifecycle engine and its catalogs.
func coreOptions() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		fx.Invoke(migration.EnforceSchemaGate),
		clock.Module,
		redis.Module,
		organization.Module,
		member.Module,
		plan.Module,
		discount.Module,
		pricing.Module,
		audit.Module,
		billing.Module,
		membership.Module,
	)
}

func serveOptions() fx.Option {
	return fx.Options(
		coreOptions(),
		pendingintent.Module,
		payment.Module,
		authorization.Module,
		server.Module,
	)
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
