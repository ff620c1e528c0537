package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Sampling   SamplingConfig   `yaml:"sampling" mapstructure:"sampling"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Projection ProjectionConfig `yaml:"projection" mapstructure:"projection"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the sample store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// APIConfig holds street-view metadata endpoint settings.
type APIConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	RadiusM     int    `yaml:"radius_m" mapstructure:"radius_m"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SamplingConfig configures densification.
type SamplingConfig struct {
	SpacingM    float64  `yaml:"spacing_m" mapstructure:"spacing_m"`
	BufferM     float64  `yaml:"buffer_m" mapstructure:"buffer_m"`
	DedupTolM   float64  `yaml:"dedup_tolerance_m" mapstructure:"dedup_tolerance_m"`
	RoadClasses []string `yaml:"road_classes" mapstructure:"road_classes"`
}

// CrawlConfig configures the crawl orchestrator.
type CrawlConfig struct {
	QPS            float64 `yaml:"qps" mapstructure:"qps"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	ClaimGraceMins int     `yaml:"claim_grace_mins" mapstructure:"claim_grace_mins"`
	ProgressEvery  int     `yaml:"progress_every" mapstructure:"progress_every"`
}

// ClaimGrace returns the lease grace period as a duration.
func (c CrawlConfig) ClaimGrace() time.Duration {
	return time.Duration(c.ClaimGraceMins) * time.Minute
}

// DataConfig holds dataset locations.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	BoundaryURL  string `yaml:"boundary_url" mapstructure:"boundary_url"`
	RoadsURL     string `yaml:"roads_url" mapstructure:"roads_url"`
	BoundaryFile string `yaml:"boundary_file" mapstructure:"boundary_file"`
	RoadsFile    string `yaml:"roads_file" mapstructure:"roads_file"`
	// RoadsClassProperty names the feature attribute carrying the road class.
	RoadsClassProperty string `yaml:"roads_class_property" mapstructure:"roads_class_property"`
}

// ProjectionConfig holds the planar CRS parameters used for densification.
// Defaults correspond to NAD83 / Ontario MNR Lambert (EPSG:3161), the CRS
// the source datasets ship in.
type ProjectionConfig struct {
	LatOrigin     float64 `yaml:"lat_origin" mapstructure:"lat_origin"`
	LngOrigin     float64 `yaml:"lng_origin" mapstructure:"lng_origin"`
	StdParallel1  float64 `yaml:"std_parallel_1" mapstructure:"std_parallel_1"`
	StdParallel2  float64 `yaml:"std_parallel_2" mapstructure:"std_parallel_2"`
	FalseEasting  float64 `yaml:"false_easting" mapstructure:"false_easting"`
	FalseNorthing float64 `yaml:"false_northing" mapstructure:"false_northing"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("PANOCOUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

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

// SetDefaults registers the default value for every tunable on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/panocount.db")
	v.SetDefault("api.base_url", "https://maps.googleapis.com")
	v.SetDefault("api.radius_m", 30)
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("sampling.spacing_m", 10.0)
	v.SetDefault("sampling.buffer_m", 50.0)
	v.SetDefault("sampling.dedup_tolerance_m", 5.0)
	v.SetDefault("sampling.road_classes", []string{
		"Major Arterial", "Minor Arterial", "Collector", "Local",
	})
	v.SetDefault("crawl.qps", 10.0)
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.claim_grace_mins", 10)
	v.SetDefault("crawl.progress_every", 500)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.output_dir", "outputs")
	v.SetDefault("data.boundary_file", "data/boundary.geojson")
	v.SetDefault("data.roads_file", "data/centreline.geojson")
	v.SetDefault("data.roads_class_property", "FEATURE_CODE_DESC")
	// NAD83 / Ontario MNR Lambert (EPSG:3161)
	v.SetDefault("projection.lat_origin", 0.0)
	v.SetDefault("projection.lng_origin", -85.0)
	v.SetDefault("projection.std_parallel_1", 44.5)
	v.SetDefault("projection.std_parallel_2", 53.5)
	v.SetDefault("projection.false_easting", 930000.0)
	v.SetDefault("projection.false_northing", 6430000.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration required for a crawl is present.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return eris.New("config: api.key is required (set PANOCOUNT_API_KEY)")
	}
	if c.Sampling.SpacingM <= 0 {
		return eris.New("config: sampling.spacing_m must be positive")
	}
	if c.Crawl.QPS <= 0 {
		return eris.New("config: crawl.qps must be positive")
	}
	if c.Crawl.Workers <= 0 {
		return eris.New("config: crawl.workers must be positive")
	}
	if c.Crawl.BatchSize <= 0 {
		return eris.New("config: crawl.batch_size must be positive")
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
