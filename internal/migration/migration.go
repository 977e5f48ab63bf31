package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	billingdomain "github.com/gymstack/gymstack/internal/billing/domain"
	discountdomain "github.com/gymstack/gymstack/internal/discount/domain"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	organizationdomain "github.com/gymstack/gymstack/internal/organization/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrateTimeout = 2 * time.Minute

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&organizationdomain.Organization{},
		&memberdomain.Member{},
		&plandomain.Plan{},
		&discountdomain.Discount{},
		&membershipdomain.Membership{},
		&auditdomain.Note{},
		&billingdomain.Invoice{},
		&billingdomain.Payment{},
	}
}

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations under an advisory lock; other drivers are auto-migrated from
// the models, which is meant for local development and tests.
func Run(ctx context.Context, conn *gorm.DB, driver string, log *zap.Logger) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	switch driver {
	case "postgres", "":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(ctx, sqlDB); err != nil {
			return err
		}
	default:
		if err := conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	log.Info("schema migrated", zap.String("driver", driver))
	return nil
}

// RunMigrations applies all embedded migrations and activates the schema
// bootstrap state.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	unlock, err := acquireAdvisoryLock(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		_ = unlock(context.Background())
	}()

	latestVersion, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	expectedChecksum, err := MigrationsChecksum()
	if err != nil {
		return err
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if _, err := ensureNotDirty(migrator); err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	currentVersion, err := ensureNotDirty(migrator)
	if err != nil {
		return err
	}
	if currentVersion != latestVersion {
		return fmt.Errorf("schema version mismatch after migrate: got %d want %d", currentVersion, latestVersion)
	}

	return activateSystemBootstrapState(ctx, db, fmt.Sprintf("%d", latestVersion), expectedChecksum, time.Now().UTC())
}

func ensureNotDirty(migrator *migrate.Migrate) (uint, error) {
	if migrator == nil {
		return 0, errors.New("migrator is required")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
