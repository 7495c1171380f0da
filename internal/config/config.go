package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"

	"github.com/1F47E/geo-marker-cluster/internal/observability"
	"github.com/1F47E/geo-marker-cluster/pkg/cluster"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/source"
	"github.com/1F47E/geo-marker-cluster/pkg/viewport"
)

// DefaultDatasetURL is the sample dataset of London points
const DefaultDatasetURL = "https://gist.githubusercontent.com/woutervh-/b9799584f2dc41141daddb5f7223d6a5/raw/bda38c3629bd431b3f4b88f48c6f35e78cfd5c6b/example%2520data-set.json"

// Config holds all application configuration.
type Config struct {
	Viewport ViewportConfig `mapstructure:"viewport"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Source   SourceConfig   `mapstructure:"source"`
	PostGIS  PostGISConfig  `mapstructure:"postgis"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ViewportConfig struct {
	LowerLeft      models.Location `mapstructure:"lower_left"`
	TopRight       models.Location `mapstructure:"top_right"`
	Width          int             `mapstructure:"width"`
	Height         int             `mapstructure:"height"`
	MarkerDiameter float64         `mapstructure:"marker_diameter"`
}

type ClusterConfig struct {
	Strategy string `mapstructure:"strategy"`
}

type SourceConfig struct {
	File string `mapstructure:"file"`
	URL  string `mapstructure:"url"`
	// Timeout for remote datasets, in seconds
	Timeout int `mapstructure:"timeout"`
	// MaxBytes caps the size of a remote dataset body
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type PostGISConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
}

// ConnString renders a lib/pq keyword/value connection string
func (p PostGISConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
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

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// New returns a viper instance with defaults, the optional config file and
// environment overrides applied. Callers may bind flags onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("markercluster")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // optional

	// MARKERCLUSTER_SERVER_PORT -> server.port
	v.SetEnvPrefix("MARKERCLUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults installs the London sample viewport and service defaults
func SetDefaults(v *viper.Viper) {
	v.SetDefault("viewport.lower_left.lat", 51.0904)
	v.SetDefault("viewport.lower_left.lon", -0.27603)
	v.SetDefault("viewport.top_right.lat", 51.6836)
	v.SetDefault("viewport.top_right.lon", 0.05081)
	v.SetDefault("viewport.width", 500)
	v.SetDefault("viewport.height", 400)
	v.SetDefault("viewport.marker_diameter", 40)
	v.SetDefault("cluster.strategy", string(cluster.StrategyLinear))
	v.SetDefault("source.file", "")
	v.SetDefault("source.url", DefaultDatasetURL)
	v.SetDefault("source.timeout", 30)
	v.SetDefault("source.max_bytes", source.DefaultMaxBytes)
	v.SetDefault("postgis.host", "localhost")
	v.SetDefault("postgis.port", 5432)
	v.SetDefault("postgis.user", "postgres")
	v.SetDefault("postgis.password", "postgres")
	v.SetDefault("postgis.database", "geoindex")
	v.SetDefault("postgis.sslmode", "disable")
	v.SetDefault("postgis.table", "features")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "markercluster")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load unmarshals and validates v. A nil v uses New().
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = New()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if err := c.ViewportConfig().Validate(); err != nil {
		errs = append(errs, "viewport: "+strings.TrimPrefix(err.Error(), viewport.ErrInvalidConfig.Error()+": "))
	}
	if _, err := cluster.ParseStrategy(c.Cluster.Strategy); err != nil {
		errs = append(errs, fmt.Sprintf("cluster.strategy: %s", err))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, "source.timeout must be positive")
	}
	if c.Source.MaxBytes <= 0 {
		errs = append(errs, "source.max_bytes must be positive")
	}
	if c.PostGIS.Port <= 0 || c.PostGIS.Port > 65535 {
		errs = append(errs, fmt.Sprintf("postgis.port must be 1-65535, got %d", c.PostGIS.Port))
	}
	if c.PostGIS.Table == "" {
		errs = append(errs, "postgis.table is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}
	if math.IsNaN(c.Tracing.SampleRatio) || c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ViewportConfig converts the viewport section to the calculator input
func (c *Config) ViewportConfig() viewport.Config {
	return viewport.Config{
		LowerLeft:      c.Viewport.LowerLeft,
		TopRight:       c.Viewport.TopRight,
		Width:          c.Viewport.Width,
		Height:         c.Viewport.Height,
		MarkerDiameter: c.Viewport.MarkerDiameter,
	}
}

// TracingConfig converts the tracing section to the observability input
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
