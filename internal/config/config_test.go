package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20, cfg.PostsLimit)
	assert.Equal(t, 4, cfg.SectionLeftCount)
	assert.Equal(t, 10*time.Second, cfg.OrderSaveTimeout)
	assert.False(t, cfg.UseAppwrite())
	assert.False(t, cfg.UseRedis())
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("POSTS_LIMIT", "50")
	t.Setenv("ORDER_SAVE_TIMEOUT", "3s")
	t.Setenv("SECTION_LEFT_COUNT", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, 50, cfg.PostsLimit)
	assert.Equal(t, 3*time.Second, cfg.OrderSaveTimeout)
	assert.Equal(t, 4, cfg.SectionLeftCount, "invalid values fall back to the default")
}

func TestValidatePartialAppwrite(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("APPWRITE_URL", "https://cloud.appwrite.io/v1")
	t.Setenv("APPWRITE_PROJECT_ID", "project")

	err := FromEnv().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "APPWRITE_POST_ORDER_COLLECTION_ID")
	assert.NotContains(t, err.Error(), "APPWRITE_PROJECT_ID is required")
}

func TestValidateRequiresJWTSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	err := FromEnv().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
