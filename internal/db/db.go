package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/model"
)

// sqlitePrefix selects the embedded SQLite driver, e.g. "sqlite:file:dev.db".
const sqlitePrefix = "sqlite:"

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&model.User{},
		&model.Equipment{},
		&model.Sensor{},
		&model.Reading{},
		&model.Alert{},
		&model.Comment{},
		&model.PushSubscription{},
	}
}

// Open connects to the configured database without migrating it.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(cfg.DSN, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(cfg.DSN, sqlitePrefix))
	} else {
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	return db, nil
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg, log); err != nil {
		return nil, err
	}
	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, cfg *config.DatabaseConfig, log *zap.Logger) error {
	log.Info("running database migrations")
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableTimescale {
		log.Info("TimescaleDB is enabled, applying TimescaleDB-specific DDL")
		if err := applyTimescaleDDL(db); err != nil {
			log.Warn("failed to apply some TimescaleDB DDL, continuing without them", zap.Error(err))
		}
	}
	return nil
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",

		// the time column has to be part of every unique index of a hypertable
		"ALTER TABLE lecturas DROP CONSTRAINT IF EXISTS lecturas_pkey;",
		"ALTER TABLE lecturas ADD PRIMARY KEY (id, captured_at);",

		"SELECT create_hypertable('lecturas', 'captured_at', if_not_exists => TRUE, migrate_data => TRUE);",

		"CREATE INDEX IF NOT EXISTS idx_lecturas_sensor_captured_desc ON lecturas (sensor_id, captured_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
