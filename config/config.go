package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the storyline engine
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Locations  LocationsConfig  `mapstructure:"locations"`
	Linker     LinkerConfig     `mapstructure:"linker"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool   `mapstructure:"debug"`
	LogLevel       string `mapstructure:"log_level"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

func (g GeneralConfig) Validate() error {
	if strings.TrimSpace(g.EmbeddingModel) == "" {
		return fmt.Errorf("general.embedding_model required")
	}
	return nil
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// Normalize fills the default listen address.
func (s ServerConfig) Normalize() ServerConfig {
	addr := strings.TrimSpace(s.Address)
	if addr == "" {
		addr = ":10030"
	}
	if addr[0] != ':' && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	s.Address = addr
	return s
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds the connection string from either the url or the parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis caches the alias
// tables; an empty host disables the cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// Addr renders host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ClusteringConfig contains HDBSCAN and story aggregation settings
type ClusteringConfig struct {
	MinClusterSize     int  `mapstructure:"min_cluster_size"`
	MinSamples         int  `mapstructure:"min_samples"`
	AllowSingleCluster bool `mapstructure:"allow_single_cluster"`
}

// Normalize applies defaults for unset clustering values.
func (c ClusteringConfig) Normalize() ClusteringConfig {
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = 2
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 1
	}
	return c
}

func (c ClusteringConfig) Validate() error {
	if c.MinClusterSize < 2 {
		return fmt.Errorf("clustering.min_cluster_size must be >= 2")
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("clustering.min_samples must be >= 1")
	}
	return nil
}

// LocationsConfig contains story location rollup settings
type LocationsConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MaxLocations  int     `mapstructure:"max_locations"`
	MaxRegions    int     `mapstructure:"max_regions"`
	MaxCities     int     `mapstructure:"max_cities"`
}

// Normalize applies defaults for unset location values.
func (l LocationsConfig) Normalize() LocationsConfig {
	if l.MaxLocations <= 0 {
		l.MaxLocations = 5
	}
	if l.MaxRegions <= 0 {
		l.MaxRegions = 3
	}
	if l.MaxCities <= 0 {
		l.MaxCities = 3
	}
	return l
}

func (l LocationsConfig) Validate() error {
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		return fmt.Errorf("locations.min_confidence must be in [0,1]")
	}
	return nil
}

// LinkerConfig contains cross-day linking settings
type LinkerConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	TopN          int    `mapstructure:"top_n"`
	ScheduleCron  string `mapstructure:"schedule_cron"`
	LookbackDays  int    `mapstructure:"lookback_days"`
	OverwriteRuns bool   `mapstructure:"overwrite_runs"`
}

// Normalize applies defaults for unset linker values.
func (l LinkerConfig) Normalize() LinkerConfig {
	if l.TopN <= 0 {
		l.TopN = 3
	}
	if l.LookbackDays <= 0 {
		l.LookbackDays = 1
	}
	if strings.TrimSpace(l.Model) == "" {
		l.Model = "gpt-4o-mini"
	}
	return l
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.embedding_model", "text-embedding-3-small")
	viper.SetDefault("clustering.min_cluster_size", 2)
	viper.SetDefault("clustering.min_samples", 1)
	viper.SetDefault("locations.min_confidence", 0.3)
	viper.SetDefault("linker.top_n", 3)
	viper.SetDefault("linker.lookback_days", 1)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("STORYLINE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (STORYLINE_*)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Server = config.Server.Normalize()
	config.Clustering = config.Clustering.Normalize()
	config.Locations = config.Locations.Normalize()
	config.Linker = config.Linker.Normalize()

	if err := config.General.Validate(); err != nil {
		panic(err)
	}
	if err := config.Clustering.Validate(); err != nil {
		panic(err)
	}
	if err := config.Locations.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
