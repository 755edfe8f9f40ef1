package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, defaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, "file", cfg.KeystoreType)
	assert.Equal(t, "exportable", cfg.KeyVariant)
	assert.Regexp(t, appDirName+"$", cfg.CacheDir)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
	assert.Equal(t, time.Hour, cfg.PurgeSchedule)
	assert.Equal(t, 500, cfg.PurgeBatchSize)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("NOTEVAULT_DATABASE_PATH", "/tmp/vault.db")
	t.Setenv("NOTEVAULT_CRYPTO_KEY_VARIANT", "Secure")
	t.Setenv("NOTEVAULT_HTTP_ALLOWED_ORIGINS", "http://localhost:5173, http://127.0.0.1:5173")
	t.Setenv("NOTEVAULT_PURGE_BATCH_SIZE", "25")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vault.db", cfg.DatabasePath)
	assert.Equal(t, "secure", cfg.KeyVariant)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 25, cfg.PurgeBatchSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value any
		want  string
	}{
		{name: "empty database", key: "database.path", value: " ", want: "database.path"},
		{name: "unknown keystore", key: "keystore.type", value: "hsm", want: "keystore.type"},
		{name: "unknown variant", key: "crypto.key_variant", value: "hardware", want: "crypto.key_variant"},
		{name: "zero ttl", key: "auth.token_ttl_minutes", value: 0, want: "auth.token_ttl_minutes"},
		{name: "zero batch", key: "purge.batch_size", value: 0, want: "purge.batch_size"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.value)
			_, err := Load(configViper)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.want)
		})
	}
}

func TestMemoryKeystoreNeedsNoDirectory(t *testing.T) {
	configViper := NewViper()
	configViper.Set("keystore.type", "memory")
	configViper.Set("keystore.dir", "")
	_, err := Load(configViper)
	assert.NoError(t, err)
}
