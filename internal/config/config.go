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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Google   GoogleConfig   `yaml:"google" mapstructure:"google"`
	Sheets   SheetsConfig   `yaml:"sheets" mapstructure:"sheets"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SheetsConfig holds Google Sheets API settings for spreadsheet imports.
// An empty key falls back to the Places key.
type SheetsConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Range   string `yaml:"range" mapstructure:"range"`
}

// ImportConfig tunes the reconciliation runs.
type ImportConfig struct {
	SearchRateLimit   float64 `yaml:"search_rate_limit" mapstructure:"search_rate_limit"`
	SearchConcurrency int     `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	DetailConcurrency int     `yaml:"detail_concurrency" mapstructure:"detail_concurrency"`
	PhotoMaxWidth     int     `yaml:"photo_max_width" mapstructure:"photo_max_width"`
	RunTimeoutSecs    int     `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	WriteTimeoutSecs  int     `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	ProfilesPath      string  `yaml:"profiles_path" mapstructure:"profiles_path"`
}

// RunTimeout returns the overall deadline for one import run.
func (c ImportConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSecs) * time.Second
}

// WriteTimeout returns the deadline for a single store write.
func (c ImportConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port  int    `yaml:"port" mapstructure:"port"`
	Token string `yaml:"token" mapstructure:"token"`
}

// ScheduleConfig configures the periodic My-Maps sync run by the server.
type ScheduleConfig struct {
	MyMapsURL      string `yaml:"mymaps_url" mapstructure:"mymaps_url"`
	MyMapsInterval string `yaml:"mymaps_interval" mapstructure:"mymaps_interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (optional) and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path and environment. An empty path
// looks for an optional config.yaml in the working directory; an explicit
// path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PARISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "parishes.db")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.timeout_secs", 10)
	v.SetDefault("google.max_retries", 3)
	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("sheets.range", "A2:J")
	v.SetDefault("import.search_rate_limit", 5.0)
	v.SetDefault("import.search_concurrency", 4)
	v.SetDefault("import.detail_concurrency", 4)
	v.SetDefault("import.photo_max_width", 400)
	v.SetDefault("import.run_timeout_secs", 540)
	v.SetDefault("import.write_timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.mymaps_interval", "12h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without defaults must be bound explicitly so env-only values unmarshal.
	for _, key := range []string{"google.key", "sheets.key", "server.token", "schedule.mymaps_url", "import.profiles_path"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

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

// Validate checks that the keys a command depends on are present.
// Mode is one of "places", "structured", "store", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "places":
		if c.Google.Key == "" {
			errs = append(errs, "google.key is required")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateImport()...)
	case "structured":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateImport()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Schedule.MyMapsURL != "" {
			if _, err := time.ParseDuration(c.Schedule.MyMapsInterval); err != nil {
				errs = append(errs, "schedule.mymaps_interval must be a duration")
			}
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateImport()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateImport() []string {
	var errs []string
	if c.Import.SearchConcurrency < 1 || c.Import.SearchConcurrency > 32 {
		errs = append(errs, "import.search_concurrency must be between 1 and 32")
	}
	if c.Import.DetailConcurrency < 1 || c.Import.DetailConcurrency > 32 {
		errs = append(errs, "import.detail_concurrency must be between 1 and 32")
	}
	if c.Import.SearchRateLimit < 0 {
		errs = append(errs, "import.search_rate_limit must be >= 0")
	}
	return errs
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
