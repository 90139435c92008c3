// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigrationSource はドライバに対応するマイグレーションファイル群を返す。
func MigrationSource(driver string) (fs.FS, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return fs.Sub(migrationsFS, "migrations/"+driver)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。dbはクローズしない。
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	return withMigrator(ctx, db, driver, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigrations はすべてのマイグレーションを取り消す。
func RollbackMigrations(ctx context.Context, db *sql.DB, driver string) error {
	return withMigrator(ctx, db, driver, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion は適用済みのバージョンとdirtyフラグを返す。
// 未適用の場合はversion 0を返す。
func MigrationVersion(ctx context.Context, db *sql.DB, driver string) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := withMigrator(ctx, db, driver, func(m *migrate.Migrate) error {
		v, d, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		version, dirty = v, d
		return nil
	})
	return version, dirty, err
}

// withMigrator は既存の接続上にmigrateインスタンスを組み立ててfnを実行する。
// migrateのClose()は下位の*sql.DBまで閉じてしまうため、
// PostgreSQLは専用コネクションだけを解放し、SQLiteはClose()を呼ばない。
func withMigrator(ctx context.Context, db *sql.DB, driver string, fn func(*migrate.Migrate) error) error {
	sub, err := MigrationSource(driver)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var (
		instance database.Driver
		release  func() error
	)
	switch driver {
	case DriverPostgres:
		conn, err := db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire connection: %w", err)
		}
		pg, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to create migration driver: %w", err)
		}
		instance, release = pg, pg.Close
	case DriverSQLite:
		lite, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create migration driver: %w", err)
		}
		instance, release = lite, func() error { return nil }
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		_ = release()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	fnErr := fn(m)
	_ = source.Close()
	if err := release(); err != nil && fnErr == nil {
		return fmt.Errorf("failed to release migration connection: %w", err)
	}
	return fnErr
}
