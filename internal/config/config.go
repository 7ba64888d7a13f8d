package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the chat router service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Throttle      ThrottleConfig      `mapstructure:"throttle"`
	Sessions      SessionConfig       `mapstructure:"sessions"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ChatConfig governs the completion attempt loop. CompletionTimeout is the
// hard ceiling on a single provider call; it is deliberately an explicit
// setting rather than something inferred from UI copy.
type ChatConfig struct {
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	MaxHistory        int           `mapstructure:"max_history"`
}

// ThrottleConfig holds the per-visitor admission ceilings.
type ThrottleConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	RequestsPerDay    int `mapstructure:"requests_per_day"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ReportingConfig pins the calendar-day boundary to one timezone so daily
// quotas reset at a deterministic moment regardless of where the process runs.
type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type AdminConfig struct {
	APIToken string `mapstructure:"api_token"`
}

type ObservabilityConfig struct {
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// Options controls where Load looks for configuration sources.
type Options struct {
	ConfigFile string
	EnvFile    string
}

func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("CHATD_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		// Allow standard lookup locations when no explicit file is provided.
		v.SetConfigName("chatd")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CHATD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.URL == "" {
		missing = append(missing, "CHATD_DATABASE_URL")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "CHATD_REDIS_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Chat.CompletionTimeout <= 0 {
		return fmt.Errorf("chat.completion_timeout must be > 0")
	}
	if c.Throttle.RequestsPerMinute <= 0 {
		return fmt.Errorf("throttle.requests_per_minute must be > 0")
	}
	if c.Throttle.RequestsPerDay <= 0 {
		return fmt.Errorf("throttle.requests_per_day must be > 0")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("reporting.timezone: %w", err)
	}
	return nil
}

// ReportingLocation resolves the reference timezone; Validate guarantees it parses.
func (c *Config) ReportingLocation() *time.Location {
	loc, err := time.LoadLocation(c.Reporting.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	// Env-only keys must be registered for AutomaticEnv to reach them
	// through Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("admin.api_token", "")

	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("chat.completion_timeout", "15s")
	v.SetDefault("chat.max_history", 20)

	v.SetDefault("throttle.requests_per_minute", 10)
	v.SetDefault("throttle.requests_per_day", 100)

	v.SetDefault("sessions.ttl", "2h")

	v.SetDefault("reporting.timezone", "UTC")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			return time.ParseDuration(data.(string))
		case reflect.Int, reflect.Int64, reflect.Float64:
			return data, nil
		default:
			return data, nil
		}
	}
}
