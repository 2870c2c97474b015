package reminder

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"

	"github.com/nao1215/reminder/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate はチケットテーブルのマイグレーションを適用する。
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	_, err := migration.Run(ctx, db, migrationsFS, "migrations", logger)
	return err
}
