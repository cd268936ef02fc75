// Package database provides database connection and management.
package database

import (
	"context"
	"errors"
	"time"

	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/crypto"
	"edu-ai-gateway/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM database connection.
type Database struct {
	DB     *gorm.DB
	logger *zap.Logger
}

// New creates a new PostgreSQL connection.
func New(cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	db, err := Open(postgres.Open(cfg.GetDSN()), log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Open wraps an arbitrary dialector, used by tests with SQLite.
func Open(dialector gorm.Dialector, log *zap.Logger) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return &Database{DB: db, logger: log}, nil
}

// singleDefaultIndex backs the one-default-provider rule at the storage level.
const singleDefaultIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_configs_single_default
ON provider_configs (is_default) WHERE is_default = true AND is_active = true`

// Migrate runs schema auto-migration.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(
		&models.User{},
		&models.ProviderConfig{},
		&models.CallRecord{},
		&models.ErrorRecord{},
		&models.Exercise{},
	); err != nil {
		return err
	}
	return d.DB.Exec(singleDefaultIndex).Error
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedDefaultProviders creates the Tongyi and DeepSeek configs when missing and
// makes defaultName the default provider if no default exists yet.
func (d *Database) SeedDefaultProviders(cfg *config.ProvidersConfig, defaultName string, enc *crypto.Encryptor) error {
	seeds := []struct {
		name        string
		displayName string
		provider    config.ProviderConfig
		extra       datatypes.JSONMap
	}{
		{
			name:        "tongyi",
			displayName: "通义千问",
			provider:    cfg.Tongyi,
			extra:       datatypes.JSONMap{"model": cfg.Tongyi.Model, "vision_model": cfg.Tongyi.VisionModel},
		},
		{
			name:        "deepseek",
			displayName: "DeepSeek",
			provider:    cfg.DeepSeek,
			extra:       datatypes.JSONMap{"model": cfg.DeepSeek.Model},
		},
	}

	for _, seed := range seeds {
		var existing models.ProviderConfig
		err := d.DB.Where("internal_name = ?", seed.name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		credential, err := enc.Encrypt(seed.provider.APIKey)
		if err != nil {
			return err
		}

		row := models.ProviderConfig{
			InternalName: seed.name,
			DisplayName:  seed.displayName,
			EndpointURL:  seed.provider.BaseURL,
			Credential:   credential,
			MaxTokens:    seed.provider.MaxTokens,
			Temperature:  seed.provider.Temperature,
			ExtraParams:  seed.extra,
			IsActive:     seed.provider.APIKey != "",
		}
		if err := d.DB.Create(&row).Error; err != nil {
			d.logger.Error("failed to seed provider config", zap.String("name", seed.name), zap.Error(err))
			continue
		}
		d.logger.Info("seeded provider config", zap.String("name", seed.name), zap.Bool("active", row.IsActive))
	}

	var defaults int64
	if err := d.DB.Model(&models.ProviderConfig{}).
		Where("is_default = ? AND is_active = ?", true, true).
		Count(&defaults).Error; err != nil {
		return err
	}
	if defaults > 0 || defaultName == "" {
		return nil
	}

	res := d.DB.Model(&models.ProviderConfig{}).
		Where("internal_name = ? AND is_active = ?", defaultName, true).
		Update("is_default", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.logger.Info("default provider assigned", zap.String("name", defaultName))
	}
	return nil
}
