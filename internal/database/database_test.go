package database_test

import (
	"context"
	"io/fs"
	"testing"

	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/crypto"
	"edu-ai-gateway/internal/database"
	"edu-ai-gateway/internal/database/databasetest"
	"edu-ai-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providersConfig(tongyiKey, deepseekKey string) *config.ProvidersConfig {
	return &config.ProvidersConfig{
		Tongyi: config.ProviderConfig{
			APIKey:      tongyiKey,
			BaseURL:     "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation",
			Model:       "qwen-plus",
			VisionModel: "qwen-vl-max",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		DeepSeek: config.ProviderConfig{
			APIKey:      deepseekKey,
			BaseURL:     "https://api.deepseek.com/v1/chat/completions",
			Model:       "deepseek-chat",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
	}
}

func TestSeedDefaultProviders(t *testing.T) {
	db := databasetest.New(t)
	enc, err := crypto.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	require.NoError(t, db.SeedDefaultProviders(providersConfig("sk-tongyi", ""), "tongyi", enc))

	var rows []models.ProviderConfig
	require.NoError(t, db.DB.Order("internal_name").Find(&rows).Error)
	require.Len(t, rows, 2)

	deepseek, tongyi := rows[0], rows[1]
	assert.Equal(t, "deepseek", deepseek.InternalName)
	assert.False(t, deepseek.IsActive)
	assert.False(t, deepseek.IsDefault)

	assert.Equal(t, "tongyi", tongyi.InternalName)
	assert.True(t, tongyi.IsActive)
	assert.True(t, tongyi.IsDefault)
	assert.Equal(t, 2000, tongyi.MaxTokens)
	assert.Equal(t, "qwen-vl-max", tongyi.ExtraString("vision_model", ""))
	assert.NotEqual(t, "sk-tongyi", tongyi.Credential)

	plain, err := enc.Decrypt(tongyi.Credential)
	require.NoError(t, err)
	assert.Equal(t, "sk-tongyi", plain)
}

func TestSeedDefaultProvidersIsIdempotent(t *testing.T) {
	db := databasetest.New(t)
	enc, err := crypto.New("")
	require.NoError(t, err)

	cfg := providersConfig("sk-tongyi", "sk-deepseek")
	require.NoError(t, db.SeedDefaultProviders(cfg, "deepseek", enc))
	require.NoError(t, db.SeedDefaultProviders(cfg, "tongyi", enc))

	var count int64
	require.NoError(t, db.DB.Model(&models.ProviderConfig{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var def models.ProviderConfig
	require.NoError(t, db.DB.Where("is_default = ?", true).First(&def).Error)
	assert.Equal(t, "deepseek", def.InternalName)
}

func TestSeedSkipsDefaultWhenInactive(t *testing.T) {
	db := databasetest.New(t)
	enc, err := crypto.New("")
	require.NoError(t, err)

	require.NoError(t, db.SeedDefaultProviders(providersConfig("", ""), "tongyi", enc))

	var defaults int64
	require.NoError(t, db.DB.Model(&models.ProviderConfig{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Zero(t, defaults)
}

func TestSingleDefaultIndex(t *testing.T) {
	db := databasetest.New(t)

	a := models.ProviderConfig{InternalName: "a", EndpointURL: "http://a", Credential: "x", IsActive: true, IsDefault: true}
	b := models.ProviderConfig{InternalName: "b", EndpointURL: "http://b", Credential: "x", IsActive: true, IsDefault: true}
	require.NoError(t, db.DB.Create(&a).Error)
	assert.Error(t, db.DB.Create(&b).Error)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.Glob(database.MigrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, entries, "migrations/000001_init.up.sql")
	assert.Contains(t, entries, "migrations/000001_init.down.sql")
}

func TestPing(t *testing.T) {
	db := databasetest.New(t)
	require.NoError(t, db.Ping(context.Background()))
}
