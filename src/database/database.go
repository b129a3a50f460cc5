package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	stdlog "log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/username/papertrade/backend/src/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var DB *sql.DB

// Open opens a SQLite database at the given path with the pragmas this
// application requires. Connections are capped at 1 to serialize writers;
// trades rely on this plus explicit transactions for atomicity.
func Open(databasePath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}

	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// InitDB opens the application database and stores the handle in the
// package-level DB variable. Fatal on failure; the server cannot run
// without its store.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("database init failed: %v", err)
	}
	DB = db
	logger.L.Info("Database connection established with WAL mode, busy_timeout, and foreign_keys enabled.")
}

// MigrateUp applies all pending migrations from the embedded filesystem.
func MigrateUp(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RunMigrations applies migrations to the global DB handle.
func RunMigrations() {
	if DB == nil {
		stdlog.Fatal("database connection is not initialized before running migrations")
	}

	logger.L.Info("Applying database migrations...")
	if err := MigrateUp(DB); err != nil {
		logger.L.Error("Failed to apply migrations", "error", err)
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
	logger.L.Info("Database migrations applied successfully.")
}
