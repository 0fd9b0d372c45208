package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var configFile string

// Backend drivers
const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Backend     BackendConfig  `mapstructure:"backend"`
	DB          DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Azure       AzureConfig    `mapstructure:"azure"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
	Session     SessionConfig  `mapstructure:"session"`
	Worker      WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BackendConfig describes how to reach the backend-as-a-service.
// URL and AnonKey are the only required values for the rest driver;
// when either is missing the backend is disabled rather than failing.
type BackendConfig struct {
	Driver       string        `mapstructure:"driver"`
	URL          string        `mapstructure:"url"`
	AnonKey      string        `mapstructure:"anon_key"`
	FunctionsURL string        `mapstructure:"functions_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Configured reports whether enough is set to talk to a backend.
func (b BackendConfig) Configured(db DatabaseConfig) bool {
	if b.Driver == DriverPostgres {
		return db.DSN != ""
	}
	return b.URL != "" && b.AnonKey != ""
}

// FunctionsEndpoint returns the base URL for HTTPS functions.
func (b BackendConfig) FunctionsEndpoint() string {
	if b.FunctionsURL != "" {
		return strings.TrimRight(b.FunctionsURL, "/")
	}
	if b.URL == "" {
		return ""
	}
	return strings.TrimRight(b.URL, "/") + "/functions/v1"
}

// DatabaseConfig holds direct database configuration for the postgres driver
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Enabled  bool          `mapstructure:"enabled"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AzureConfig holds Azure Service Bus configuration
type AzureConfig struct {
	QueueConnStr string `mapstructure:"queue_conn_str"`
	QueueName    string `mapstructure:"queue_name"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	LicenseKey     string `mapstructure:"license_key"`
	AppName        string `mapstructure:"app_name"`
	LogEnabled     bool   `mapstructure:"log_enabled"`
	DistribTracing bool   `mapstructure:"distributed_tracing_enabled"`
}

// SessionConfig controls where the signed-in identity is kept between runs
type SessionConfig struct {
	IdentityFile string `mapstructure:"identity_file"`
}

// WorkerConfig holds background refresh configuration
type WorkerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	AgentIDs        []string      `mapstructure:"agent_ids"`
	LookbackDays    int           `mapstructure:"lookback_days"`
}

// SetConfigFile overrides the config search path with an explicit file
func SetConfigFile(file string) {
	configFile = file
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(path)
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			v.SetConfigName("app")
			v.SetConfigType("env")
			// Continue without a file: env vars and defaults are enough
			_ = v.ReadInConfig()
		} else {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DAIRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by the mobile build for the same backend
	_ = v.BindEnv("backend.url", "DAIRY_BACKEND_URL", "SUPABASE_URL", "EXPO_PUBLIC_SUPABASE_URL")
	_ = v.BindEnv("backend.anon_key", "DAIRY_BACKEND_ANON_KEY", "SUPABASE_ANON_KEY", "EXPO_PUBLIC_SUPABASE_ANON_KEY")
	_ = v.BindEnv("tracing.license_key", "DAIRY_TRACING_LICENSE_KEY", "NEW_RELIC_LICENSE_KEY")
	_ = v.BindEnv("logging.level", "DAIRY_LOGGING_LEVEL", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("backend.driver", DriverREST)
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.anon_key", "")
	v.SetDefault("backend.functions_url", "")
	v.SetDefault("backend.timeout", "20s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("azure.queue_conn_str", "")
	v.SetDefault("azure.queue_name", "delivery-events")

	v.SetDefault("tracing.license_key", "")
	v.SetDefault("tracing.app_name", "Dairy Delivery")
	v.SetDefault("tracing.log_enabled", true)
	v.SetDefault("tracing.distributed_tracing_enabled", true)

	v.SetDefault("session.identity_file", defaultIdentityFile())

	v.SetDefault("worker.refresh_interval", "5m")
	v.SetDefault("worker.agent_ids", []string{})
	v.SetDefault("worker.lookback_days", 0)
}

func defaultIdentityFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".dairy-identity.json")
	}
	return filepath.Join(dir, "dairy", "identity.json")
}
