package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gymstack/gymstack/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	bootstrapStatusActive = "active"
)

var ErrSchemaNotReady = errors.New("schema_not_ready")

func activateSystemBootstrapState(ctx context.Context, db *sql.DB, schemaVersion, checksum string, now time.Time) error {
	if db == nil {
		return errors.New("bootstrap state requires database handle")
	}

	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required for bootstrap state activation")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO system_bootstrap_state (id, status, schema_version, checksum, activated_at, created_at)
		VALUES (TRUE, $1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    activated_at = EXCLUDED.activated_at
	`, bootstrapStatusActive, version, nullIfEmpty(checksum), now)
	if err != nil {
		return fmt.Errorf("activate system bootstrap state: %w", err)
	}
	return nil
}

// EnforceSchemaGate refuses to start serving against a Postgres schema
// that `gymstack migrate` has not activated at the embedded version.
func EnforceSchemaGate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "" {
		return nil
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}

	var row struct {
		Status        string
		SchemaVersion string
	}
	err = conn.WithContext(context.Background()).
		Raw("SELECT status, schema_version FROM system_bootstrap_state WHERE id = TRUE").
		Scan(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaNotReady, err)
	}
	if row.Status != bootstrapStatusActive || row.SchemaVersion != fmt.Sprintf("%d", latest) {
		log.Error("schema gate closed",
			zap.String("status", row.Status),
			zap.String("schema_version", row.SchemaVersion),
			zap.Uint("expected_version", latest),
		)
		return ErrSchemaNotReady
	}
	return nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
