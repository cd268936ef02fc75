package repository

import (
	"context"
	"fmt"
	"time"

	"edu-ai-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderConfigRepository is the store of vendor configurations.
// Every write that touches is_default runs in a transaction so at most one
// active config is the default.
type ProviderConfigRepository struct {
	db *gorm.DB
}

// NewProviderConfigRepository creates a new provider config repository.
func NewProviderConfigRepository(db *gorm.DB) *ProviderConfigRepository {
	return &ProviderConfigRepository{db: db}
}

// Create inserts a new config. The default flag is never set here; use
// SetDefault or CreateDefault.
func (r *ProviderConfigRepository) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.IsDefault = false
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertConfig(tx, cfg)
	})
}

// CreateDefault inserts an active config and makes it the only default in
// one transaction.
func (r *ProviderConfigRepository) CreateDefault(ctx context.Context, cfg *models.ProviderConfig) error {
	if !cfg.IsActive {
		return fmt.Errorf("%w: an inactive provider cannot be the default", ErrInvariantViolation)
	}
	cfg.IsDefault = false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertConfig(tx, cfg); err != nil {
			return err
		}
		if err := tx.Model(&models.ProviderConfig{}).
			Where("id <> ? AND is_default = ?", cfg.ID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(cfg).Update("is_default", true).Error
	})
	if err != nil {
		cfg.IsDefault = false
		return err
	}
	return nil
}

func insertConfig(tx *gorm.DB, cfg *models.ProviderConfig) error {
	var taken int64
	if err := tx.Model(&models.ProviderConfig{}).
		Where("internal_name = ?", cfg.InternalName).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return fmt.Errorf("%w: provider %q already exists", ErrInvariantViolation, cfg.InternalName)
	}
	return translate(tx.Create(cfg).Error)
}

// GetByID retrieves a config by ID regardless of state.
func (r *ProviderConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	if err := r.db.WithContext(ctx).First(&cfg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// GetDefault returns the active default config.
func (r *ProviderConfigRepository) GetDefault(ctx context.Context) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&cfg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// GetByName returns the active config with the given internal name.
func (r *ProviderConfigRepository) GetByName(ctx context.Context, name string) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("internal_name = ? AND is_active = ?", name, true).
		First(&cfg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// List returns every config, oldest first.
func (r *ProviderConfigRepository) List(ctx context.Context) ([]models.ProviderConfig, error) {
	var cfgs []models.ProviderConfig
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

// ListActive returns the active configs.
func (r *ProviderConfigRepository) ListActive(ctx context.Context) ([]models.ProviderConfig, error) {
	var cfgs []models.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&cfgs).Error
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// Update writes the editable fields. Flags and usage counters are left alone.
func (r *ProviderConfigRepository) Update(ctx context.Context, cfg *models.ProviderConfig) error {
	res := r.db.WithContext(ctx).
		Model(cfg).
		Select("display_name", "endpoint_url", "credential", "max_tokens", "temperature", "extra_params").
		Updates(cfg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefault makes the active config id the only default.
func (r *ProviderConfigRepository) SetDefault(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.ProviderConfig
		if err := tx.Where("id = ? AND is_active = ?", id, true).First(&target).Error; err != nil {
			return translate(err)
		}

		if err := tx.Model(&models.ProviderConfig{}).
			Where("id <> ? AND is_default = ?", id, true).
			Update("is_default", false).Error; err != nil {
			return err
		}

		return tx.Model(&target).Update("is_default", true).Error
	})
}

// ToggleActive flips is_active. Deactivating the default also clears is_default.
func (r *ProviderConfigRepository) ToggleActive(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&cfg, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		active := !cfg.IsActive
		isDefault := cfg.IsDefault && active
		if err := tx.Model(&models.ProviderConfig{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_active":  active,
			"is_default": isDefault,
		}).Error; err != nil {
			return err
		}
		cfg.IsActive, cfg.IsDefault = active, isDefault
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Delete removes a config. The current default cannot be deleted.
func (r *ProviderConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.ProviderConfig
		if err := tx.First(&cfg, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if cfg.IsDefault {
			return fmt.Errorf("%w: %s is the default provider, assign another default first", ErrInvariantViolation, cfg.InternalName)
		}
		return tx.Delete(&models.ProviderConfig{}, "id = ?", id).Error
	})
}

// IncrementUsage bumps usage_count and stamps last_used.
func (r *ProviderConfigRepository) IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ProviderConfig{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + ?", 1),
			"last_used":   at,
		}).Error
}
