package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "NOTEVAULT"
	appDirName             = "notevault"
	defaultHTTPAddress     = "127.0.0.1:7431"
	defaultDatabasePath    = "notevault.db"
	defaultLogLevel        = "info"
	defaultKeystoreType    = "file"
	defaultKeyVariant      = "exportable"
	defaultTokenTTLMinutes = 720
	defaultRetentionHours  = 720
	defaultScheduleMinutes = 60
	defaultPurgeBatchSize  = 500
)

// AppConfig captures runtime configuration for the note vault.
type AppConfig struct {
	DatabasePath   string
	CacheDir       string
	KeystoreType   string
	KeystoreDir    string
	KeyVariant     string
	SharedSecret   string
	LogLevel       string
	HTTPAddress    string
	AllowedOrigins []string
	SigningSecret  string
	TokenTTL       time.Duration
	Retention      time.Duration
	PurgeSchedule  time.Duration
	PurgeBatchSize int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("cache.dir", defaultCacheDir())
	configViper.SetDefault("keystore.type", defaultKeystoreType)
	configViper.SetDefault("keystore.dir", defaultKeystoreDir())
	configViper.SetDefault("crypto.key_variant", defaultKeyVariant)
	configViper.SetDefault("crypto.shared_secret", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("purge.retention_hours", defaultRetentionHours)
	configViper.SetDefault("purge.schedule_minutes", defaultScheduleMinutes)
	configViper.SetDefault("purge.batch_size", defaultPurgeBatchSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:   configViper.GetString("database.path"),
		CacheDir:       configViper.GetString("cache.dir"),
		KeystoreType:   strings.ToLower(strings.TrimSpace(configViper.GetString("keystore.type"))),
		KeystoreDir:    configViper.GetString("keystore.dir"),
		KeyVariant:     strings.ToLower(strings.TrimSpace(configViper.GetString("crypto.key_variant"))),
		SharedSecret:   configViper.GetString("crypto.shared_secret"),
		LogLevel:       configViper.GetString("log.level"),
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		Retention:      time.Duration(configViper.GetInt("purge.retention_hours")) * time.Hour,
		PurgeSchedule:  time.Duration(configViper.GetInt("purge.schedule_minutes")) * time.Minute,
		PurgeBatchSize: configViper.GetInt("purge.batch_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("cache.dir is required")
	}
	switch c.KeystoreType {
	case "file":
		if strings.TrimSpace(c.KeystoreDir) == "" {
			return fmt.Errorf("keystore.dir is required for the file keystore")
		}
	case "memory":
	default:
		return fmt.Errorf("keystore.type %q is not supported", c.KeystoreType)
	}
	switch c.KeyVariant {
	case "exportable", "secure":
	default:
		return fmt.Errorf("crypto.key_variant %q is not supported", c.KeyVariant)
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("purge.retention_hours must be positive")
	}
	if c.PurgeSchedule <= 0 {
		return fmt.Errorf("purge.schedule_minutes must be positive")
	}
	if c.PurgeBatchSize <= 0 {
		return fmt.Errorf("purge.batch_size must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and a comma separated env string.
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName)
}

func defaultKeystoreDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName, "keys")
}
