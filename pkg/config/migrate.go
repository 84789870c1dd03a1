package config

import (
	"errors"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	log "github.com/sirupsen/logrus"
)

func newMigrate(dir string) *migrate.Migrate {
	db, err := DB.DB()
	if err != nil {
		log.Fatal("Failed to get database connection: ", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("Failed to create postgres driver: ", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(dir), "postgres", driver)
	if err != nil {
		log.Fatal("Failed to create migrate instance: ", err)
	}
	return m
}

// ExecuteMigrations applies the SQL migrations in dir. They add the
// constraints gorm tags cannot express and run after AutoMigrate.
func ExecuteMigrations(dir string) {
	m := newMigrate(dir)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("Failed to run migrations: ", err)
	}
	log.Info("Database migrations completed successfully")
}

// RollbackMigration rolls back the last migration
func RollbackMigration(dir string) {
	m := newMigrate(dir)
	if err := m.Steps(-1); err != nil {
		log.Fatal("Failed to rollback migration: ", err)
	}
	log.Info("Migration rolled back successfully")
}
