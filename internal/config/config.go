package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Source    SourceConfig    `mapstructure:"source"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the gorm driver and pool sizing.
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // sqlite, postgres
	Path             string        `mapstructure:"path"`   // sqlite file
	URL              string        `mapstructure:"url"`    // postgres URL, wins over the discrete fields
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	LogQueries       bool          `mapstructure:"log_queries"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
	}

	path := c.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	if strings.Contains(path, "_foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// SourceConfig locates the published open-data archives.
type SourceConfig struct {
	Type         string        `mapstructure:"type"` // http, local
	BaseURL      string        `mapstructure:"base_url"`
	LocalDir     string        `mapstructure:"local_dir"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	MPArchive    string        `mapstructure:"mp_archive"`
	VotingPeriod string        `mapstructure:"voting_period"`
	BillsArchive string        `mapstructure:"bills_archive"`
}

// VotingArchive returns the archive name for a voting period tag such as hl-2021ps.
func (c *SourceConfig) VotingArchive(period string) string {
	if period == "" {
		period = c.VotingPeriod
	}
	return period + ".zip"
}

// CacheConfig configures the raw-payload cache.
type CacheConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	Dir       string `mapstructure:"dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type SyncConfig struct {
	StrictProjection   bool `mapstructure:"strict_projection"`
	ElectoralPeriod    int  `mapstructure:"electoral_period"`
	DefaultCommitteeID int  `mapstructure:"default_committee_id"`
}

type MonitorConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	ReportWindow    time.Duration `mapstructure:"report_window"`
	MinActiveMPs    int64         `mapstructure:"min_active_mps"`
	MaxVoteAge      time.Duration `mapstructure:"max_vote_age"`
}

type SchedulerConfig struct {
	DailyHour  int `mapstructure:"daily_hour"`
	WeeklyDay  int `mapstructure:"weekly_day"` // time.Weekday, 0 = Sunday
	WeeklyHour int `mapstructure:"weekly_hour"`
}

// Load reads configuration from a YAML file, .env and the environment.
// Parameters:
//   - configPath: explicit file path; empty searches ./configs and the working directory.
//
// Returns:
//   - *Config: populated configuration.
//   - error: non-nil if the file exists but cannot be parsed or validated.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("source.base_url", "PSP_BASE_URL")
	_ = v.BindEnv("cache.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("cache.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("cache.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("cache.bucket", "S3_BUCKET")
	_ = v.BindEnv("cache.region", "S3_REGION")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/parliament.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.statement_timeout", 60*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("source.type", "http")
	v.SetDefault("source.base_url", "https://www.psp.cz/eknih/cdrom/opendata")
	v.SetDefault("source.local_dir", "./data/opendata")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.retry_count", 2)
	v.SetDefault("source.mp_archive", "poslanci.zip")
	v.SetDefault("source.voting_period", "hl-2021ps")
	v.SetDefault("source.bills_archive", "tisky.zip")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "local")
	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.bucket", "parlsync")
	v.SetDefault("cache.prefix", "cache")

	v.SetDefault("sync.strict_projection", false)
	v.SetDefault("sync.electoral_period", 9)
	v.SetDefault("sync.default_committee_id", 165)

	v.SetDefault("monitor.freshness_window", 48*time.Hour)
	v.SetDefault("monitor.report_window", 7*24*time.Hour)
	v.SetDefault("monitor.min_active_mps", 180)
	v.SetDefault("monitor.max_vote_age", 30*24*time.Hour)

	v.SetDefault("scheduler.daily_hour", 6)
	v.SetDefault("scheduler.weekly_day", 0)
	v.SetDefault("scheduler.weekly_hour", 2)
}

// Validate rejects configurations the sync pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Source.Type {
	case "http":
		if _, err := url.ParseRequestURI(c.Source.BaseURL); err != nil {
			return fmt.Errorf("invalid source.base_url: %w", err)
		}
	case "local":
		if c.Source.LocalDir == "" {
			return errors.New("source.local_dir is required for local source")
		}
	default:
		return fmt.Errorf("unsupported source type %q", c.Source.Type)
	}
	if c.Database.StatementTimeout <= 0 {
		return errors.New("database.statement_timeout must be positive")
	}
	if c.Scheduler.DailyHour < 0 || c.Scheduler.DailyHour > 23 ||
		c.Scheduler.WeeklyHour < 0 || c.Scheduler.WeeklyHour > 23 ||
		c.Scheduler.WeeklyDay < 0 || c.Scheduler.WeeklyDay > 6 {
		return errors.New("scheduler hours must be 0-23 and weekly_day 0-6")
	}
	return nil
}
