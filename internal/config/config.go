package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// DefaultDatasetURL is the Open Buildings v3 tile covering Rio de Janeiro.
const DefaultDatasetURL = "https://storage.googleapis.com/open-buildings-data/v3/polygons_s2_level_4_gzip/009_buildings.csv.gz"

// Config holds the full application configuration.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Landmark model.Landmark `yaml:"landmark" mapstructure:"landmark"`
	Nearest  NearestConfig  `yaml:"nearest" mapstructure:"nearest"`
	Plot     PlotConfig     `yaml:"plot" mapstructure:"plot"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatasetConfig locates and parses the buildings CSV.
type DatasetConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
	Path          string `yaml:"path" mapstructure:"path"` // local file, overrides URL
	ParseGeometry bool   `yaml:"parse_geometry" mapstructure:"parse_geometry"`
	SkipInvalid   bool   `yaml:"skip_invalid" mapstructure:"skip_invalid"`
	Limit         int    `yaml:"limit" mapstructure:"limit"`
}

// FetchConfig configures the HTTP downloader.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Progress    bool   `yaml:"progress" mapstructure:"progress"`
}

// Timeout returns the configured timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// NearestConfig configures the nearest-building query.
type NearestConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	S2Level int `yaml:"s2_level" mapstructure:"s2_level"`
}

// PlotConfig configures the centroid scatter plot.
type PlotConfig struct {
	SampleSize int    `yaml:"sample_size" mapstructure:"sample_size"`
	Size       int    `yaml:"size" mapstructure:"size"`
	Output     string `yaml:"output" mapstructure:"output"`
}

// StoreConfig configures the result store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxK           int      `yaml:"max_k" mapstructure:"max_k"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OPENBUILDINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("dataset.url", DefaultDatasetURL)
	v.SetDefault("dataset.cache_dir", "data")
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.parse_geometry", false)
	v.SetDefault("dataset.skip_invalid", false)
	v.SetDefault("dataset.limit", 0)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0")
	v.SetDefault("fetch.timeout_secs", 1800)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.progress", true)
	v.SetDefault("landmark.name", model.CristoRedentor.Name)
	v.SetDefault("landmark.latitude", model.CristoRedentor.Latitude)
	v.SetDefault("landmark.longitude", model.CristoRedentor.Longitude)
	v.SetDefault("nearest.workers", 1)
	v.SetDefault("nearest.s2_level", 16)
	v.SetDefault("plot.sample_size", 200000)
	v.SetDefault("plot.size", 1000)
	v.SetDefault("plot.output", "buildings.png")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/results.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_k", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode.
// Modes: "dataset", "plot", "nearest", "load", "history", "serve". Every mode
// checks the landmark.
func (c *Config) Validate(mode string) error {
	var errs []string

	if !c.Landmark.IsFinite() ||
		c.Landmark.Latitude < -90 || c.Landmark.Latitude > 90 ||
		c.Landmark.Longitude < -180 || c.Landmark.Longitude > 180 {
		errs = append(errs, fmt.Sprintf("landmark (%v, %v) is not a valid coordinate", c.Landmark.Latitude, c.Landmark.Longitude))
	}
	if c.Nearest.S2Level < 0 || c.Nearest.S2Level > 30 {
		errs = append(errs, fmt.Sprintf("nearest.s2_level must be between 0 and 30, got %d", c.Nearest.S2Level))
	}
	if c.Dataset.URL == "" && c.Dataset.Path == "" {
		errs = append(errs, "dataset.url or dataset.path is required")
	}

	switch mode {
	case "dataset", "history":
	case "plot":
		if c.Plot.SampleSize <= 0 {
			errs = append(errs, "plot.sample_size must be > 0")
		}
		if c.Plot.Size < 16 {
			errs = append(errs, "plot.size must be >= 16")
		}
	case "nearest":
		if c.Nearest.Workers < 0 {
			errs = append(errs, "nearest.workers must be >= 0")
		}
	case "load":
		if c.Store.Driver != "postgres" {
			errs = append(errs, "load requires store.driver=postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxK <= 0 {
			errs = append(errs, "server.max_k must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
