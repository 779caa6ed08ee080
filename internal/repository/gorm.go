package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/SergeiKhy/fileshare/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// linkRecord строка short_links для gorm
type linkRecord struct {
	Code        string     `gorm:"primaryKey;size:16"`
	TargetURL   string     `gorm:"type:text;not null"`
	Owner       string     `gorm:"size:255;not null;index:idx_short_links_owner_created,priority:1"`
	ResourceKey string     `gorm:"size:1024;not null"`
	DisplayName string     `gorm:"size:255;not null"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_short_links_owner_created,priority:2"`
	ExpiresAt   *time.Time `gorm:"index"`
	ClickCount  int64      `gorm:"not null"`
}

func (linkRecord) TableName() string { return "short_links" }

// userRecord строка user_accounts для gorm
type userRecord struct {
	UserID         string     `gorm:"primaryKey;size:255"`
	Email          string     `gorm:"size:255;not null;uniqueIndex"`
	Tier           string     `gorm:"size:16;not null;index:idx_user_accounts_trial,priority:1"`
	TrialUsed      bool       `gorm:"not null"`
	TrialStartedAt *time.Time
	TrialExpiresAt *time.Time `gorm:"index:idx_user_accounts_trial,priority:2"`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (userRecord) TableName() string { return "user_accounts" }

type schemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:128;not null"`
	AppliedAt time.Time
}

func (schemaMigration) TableName() string { return "schema_migrations" }

type gormMigration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

var gormMigrations = []gormMigration{
	{1, "create_short_links", func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&linkRecord{}) }},
	{2, "create_user_accounts", func(tx *gorm.DB) error { return tx.Migrator().CreateTable(&userRecord{}) }},
}

// NewGormDB открывает MySQL или SQLite по DB_DRIVER
func NewGormDB(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		dialector = mysql.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.Path + "?_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", cfg.Driver)
	}
	return OpenGorm(dialector)
}

// OpenGorm настраивает gorm поверх готового диалекта
func OpenGorm(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite допускает одного писателя
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// MigrateGorm применяет недостающие версии схемы
func MigrateGorm(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&schemaMigration{}); err != nil {
			return fmt.Errorf("failed to create schema_migrations: %w", err)
		}

		var applied []int
		if err := tx.Model(&schemaMigration{}).Pluck("version", &applied).Error; err != nil {
			return fmt.Errorf("failed to read schema_migrations: %w", err)
		}

		for _, m := range gormMigrations {
			if slices.Contains(applied, m.version) {
				continue
			}
			if err := m.up(tx); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
			if err := tx.Create(&schemaMigration{Version: m.version, Name: m.name, AppliedAt: time.Now().UTC()}).Error; err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.version, err)
			}
		}
		return nil
	})
}
