package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/mailbox"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"github.com/MarcoPoloResearchLab/heizoel/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every persisted type of the application.
func Models() []any {
	models := []any{&migrationRecord{}}
	models = append(models, inquiries.Models()...)
	models = append(models, settings.Models()...)
	models = append(models, mailbox.Models()...)
	models = append(models, users.Models()...)
	return models
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, log *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, log); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
