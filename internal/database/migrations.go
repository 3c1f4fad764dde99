package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/MarcoPoloResearchLab/heizoel/internal/settings"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	migrationDefaultChatNotificationTypes = "2026-03-01_default_chat_notification_types"
	migrationBackfillOrderStatus          = "2026-03-01_backfill_order_status"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDefaultChatNotificationTypes, apply: defaultChatNotificationTypes},
		{name: migrationBackfillOrderStatus, apply: backfillOrderStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// defaultChatNotificationTypes subscribes recipients without categories to every category.
func defaultChatNotificationTypes(db *gorm.DB) error {
	all := make([]string, 0, len(settings.Categories()))
	for _, category := range settings.Categories() {
		all = append(all, string(category))
	}
	return db.Model(&settings.TelegramChat{}).
		Where("notification_types IS NULL OR notification_types = '' OR notification_types = '[]' OR notification_types = 'null'").
		Update("notification_types", datatypes.JSONSlice[string](all)).Error
}

func backfillOrderStatus(db *gorm.DB) error {
	return db.Model(&inquiries.Order{}).
		Where("status IS NULL OR status = ''").
		Update("status", inquiries.OrderStatusPending).Error
}
