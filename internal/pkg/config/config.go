package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Census    CensusConfig    `mapstructure:"census"`
	Places    PlacesConfig    `mapstructure:"places"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Search    SearchConfig    `mapstructure:"search"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Enabled  bool   `mapstructure:"enabled"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// CensusConfig points at the geography-resolution and statistics services.
type CensusConfig struct {
	GeocoderURL string `mapstructure:"geocoder_url"`
	StatsURL    string `mapstructure:"stats_url"`
	APIKey      string `mapstructure:"api_key"`
	Year        int    `mapstructure:"year"`
	Timeout     int    `mapstructure:"timeout"` // seconds
}

type PlacesConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	MinIntervalMS     int     `mapstructure:"min_interval_ms"`
	QuotaCooldownMS   int     `mapstructure:"quota_cooldown_ms"`
	CoverageRadiusMi  float64 `mapstructure:"coverage_radius_mi"`
	MaxSearchRadiusM  float64 `mapstructure:"max_search_radius_m"`
	PlacesCacheTTLSec int     `mapstructure:"places_cache_ttl_sec"`
}

func (s SearchConfig) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalMS) * time.Millisecond
}

func (s SearchConfig) QuotaCooldown() time.Duration {
	return time.Duration(s.QuotaCooldownMS) * time.Millisecond
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GAPFINDER_CENSUS_API_KEY → census.api_key
	v.SetEnvPrefix("GAPFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gapfinder")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "gapfinder")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("census.geocoder_url", "https://geocoding.geo.census.gov/geocoder/geographies/coordinates")
	v.SetDefault("census.stats_url", "https://api.census.gov/data")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.year", 2022)
	v.SetDefault("census.timeout", 15)
	v.SetDefault("places.api_key", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("search.min_interval_ms", 2000)
	v.SetDefault("search.quota_cooldown_ms", 60000)
	v.SetDefault("search.coverage_radius_mi", 2.5)
	v.SetDefault("search.max_search_radius_m", 50000)
	v.SetDefault("search.places_cache_ttl_sec", 300)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "analysis-queue")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.Census.GeocoderURL == "" || c.Census.StatsURL == "" {
		errs = append(errs, "census.geocoder_url and census.stats_url are required")
	}
	if c.Census.Year < 2009 {
		errs = append(errs, fmt.Sprintf("census.year must be 2009 or later, got %d", c.Census.Year))
	}
	if c.Census.Timeout <= 0 {
		errs = append(errs, "census.timeout must be positive")
	}
	if c.Search.MinIntervalMS < 0 {
		errs = append(errs, "search.min_interval_ms must not be negative")
	}
	if c.Search.QuotaCooldownMS <= 0 {
		errs = append(errs, "search.quota_cooldown_ms must be positive")
	}
	if c.Search.CoverageRadiusMi <= 0 {
		errs = append(errs, "search.coverage_radius_mi must be positive")
	}
	if c.Search.MaxSearchRadiusM <= 0 {
		errs = append(errs, "search.max_search_radius_m must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
