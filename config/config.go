package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP server
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Link lifecycle
	Link LinkConfig `mapstructure:"link"`

	// Geolocation providers
	Geo GeoConfig `mapstructure:"geo"`

	// Auth
	Auth AuthConfig `mapstructure:"auth"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

// LinkConfig drives code generation and the tiered expiration policy.
type LinkConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	CodeLength       int           `mapstructure:"code_length"`
	GenerateRetries  int           `mapstructure:"generate_retries"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	ReaperInterval   time.Duration `mapstructure:"reaper_interval"`
	ReaperBatchSize  int           `mapstructure:"reaper_batch_size"`
	RecentVisitLimit int           `mapstructure:"recent_visit_limit"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// GeoConfig points at the external geolocation providers.
type GeoConfig struct {
	IPLookupURL      string        `mapstructure:"ip_lookup_url"`
	ReverseLookupURL string        `mapstructure:"reverse_lookup_url"`
	AccessKey        string        `mapstructure:"access_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	DeleteSecret string `mapstructure:"delete_secret"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("link.base_url", "http://localhost:8080")
	v.SetDefault("link.code_length", 8)
	v.SetDefault("link.generate_retries", 6)
	v.SetDefault("link.grace_period", "5m")
	v.SetDefault("link.reaper_interval", "30s")
	v.SetDefault("link.reaper_batch_size", 500)
	v.SetDefault("link.recent_visit_limit", 100)
	v.SetDefault("link.cache_ttl", "10m")

	v.SetDefault("geo.ip_lookup_url", "https://api.ipstack.com")
	v.SetDefault("geo.reverse_lookup_url", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geo.timeout", "3s")
}

func bindEnvVars(v *viper.Viper) {
	// HTTP server
	v.BindEnv("server.port", "SERVER_PORT")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")
	v.BindEnv("postgres.max_conns", "PG_MAX_CONNS")
	v.BindEnv("postgres.min_conns", "PG_MIN_CONNS")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Link lifecycle
	v.BindEnv("link.base_url", "LINK_BASE_URL")
	v.BindEnv("link.grace_period", "LINK_GRACE_PERIOD")
	v.BindEnv("link.reaper_interval", "LINK_REAPER_INTERVAL")

	// Geolocation
	v.BindEnv("geo.ip_lookup_url", "GEO_IP_LOOKUP_URL")
	v.BindEnv("geo.reverse_lookup_url", "GEO_REVERSE_LOOKUP_URL")
	v.BindEnv("geo.access_key", "IPSTACK_ACCESS_KEY")
	v.BindEnv("geo.timeout", "GEO_TIMEOUT")

	// Auth
	v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	v.BindEnv("auth.delete_secret", "AUTH_DELETE_SECRET")
}
