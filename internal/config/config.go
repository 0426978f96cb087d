package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/linkshield/")
	v.AddConfigPath("$HOME/.linkshield")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("LINKSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.filter_type", "nativemsg")
	v.SetDefault("server.engine_version", "1.0.0")

	// Backend defaults
	v.SetDefault("backend.candidates", []string{
		"http://localhost:3001",
		"http://localhost:3000",
		"http://127.0.0.1:3001",
		"http://127.0.0.1:3000",
	})
	v.SetDefault("backend.analyze_timeout", "90s")
	v.SetDefault("backend.aux_timeout", "8s")
	v.SetDefault("backend.browser_info", "LinkShield")
	v.SetDefault("backend.legacy_bulk", false)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.cleanup_frequency", "60s")
	v.SetDefault("cache.sqlite_path", "/data/verdict_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/linkshield")

	// Policy defaults
	v.SetDefault("policy.enable_blocking", true)
	v.SetDefault("policy.show_warnings_only", false)
	v.SetDefault("policy.strict_malicious_blocking", false)

	// Page defaults
	v.SetDefault("pages.scanning", "pages/scanning.html")
	v.SetDefault("pages.warning_standard", "pages/warning.html")
	v.SetDefault("pages.warning_strict", "pages/warning-strict.html")
	v.SetDefault("pages.warning_anomalous", "pages/warning-anomalous.html")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
