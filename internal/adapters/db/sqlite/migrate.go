package sqlite

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations brings the attendance schema (agents, presences, users,
// sessions, device_tokens, audit_logs) up to date on every start.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrations: unwrap sql db: %w", err)
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}
