package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logger   LoggerConfig   `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Export   ExportConfig   `mapstructure:"export"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LedgerConfig selects the transaction ledger. Source is a CSV path, a
// postgres:// URL, or "demo".
type LedgerConfig struct {
	Source      string        `mapstructure:"source"`
	Table       string        `mapstructure:"table"`
	CacheDir    string        `mapstructure:"cache_dir"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	StubSeed    uint64        `mapstructure:"stub_seed"`
	DemoRows    int           `mapstructure:"demo_rows"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `mapstructure:"rate_limit_enabled"`
	RateLimitRPS    int      `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"`
}

type ExportConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	JSONDir    string `mapstructure:"json_dir"`
}

// AMQPConfig enables the reload trigger queue when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

// Environment variables override file values.
var envBindings = map[string]string{
	"server.host":                 "SERVER_HOST",
	"server.port":                 "SERVER_PORT",
	"server.read_timeout":         "SERVER_READ_TIMEOUT",
	"server.write_timeout":        "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":         "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout":     "SERVER_SHUTDOWN_TIMEOUT",
	"ledger.source":               "LEDGER_SOURCE",
	"ledger.table":                "LEDGER_TABLE",
	"ledger.cache_dir":            "LEDGER_CACHE_DIR",
	"ledger.load_timeout":         "LEDGER_LOAD_TIMEOUT",
	"ledger.stub_seed":            "LEDGER_STUB_SEED",
	"ledger.demo_rows":            "LEDGER_DEMO_ROWS",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
	"security.rate_limit_enabled": "SECURITY_RATE_LIMIT_ENABLED",
	"security.rate_limit_rps":     "SECURITY_RATE_LIMIT_RPS",
	"security.rate_limit_burst":   "SECURITY_RATE_LIMIT_BURST",
	"security.allowed_origins":    "SECURITY_ALLOWED_ORIGINS",
	"security.trusted_proxies":    "SECURITY_TRUSTED_PROXIES",
	"export.sqlite_path":          "EXPORT_SQLITE_PATH",
	"export.json_dir":             "EXPORT_JSON_DIR",
	"amqp.url":                    "AMQP_URL",
	"amqp.exchange":               "AMQP_EXCHANGE",
	"amqp.queue":                  "AMQP_QUEUE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("ledger.source", "data.csv")
	v.SetDefault("ledger.table", "transactions")
	v.SetDefault("ledger.cache_dir", ".cache")
	v.SetDefault("ledger.load_timeout", 30*time.Second)
	v.SetDefault("ledger.stub_seed", 0)
	v.SetDefault("ledger.demo_rows", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.allowed_origins", []string{"http://localhost:8084"})
	v.SetDefault("security.trusted_proxies", []string{"127.0.0.1"})

	v.SetDefault("export.sqlite_path", "rfm.db")
	v.SetDefault("export.json_dir", "exports")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "rfm")
	v.SetDefault("amqp.queue", "ledger_reload")
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in increasing precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Ledger.Source == "" {
		return fmt.Errorf("ledger source cannot be empty")
	}

	if c.Ledger.LoadTimeout <= 0 {
		return fmt.Errorf("ledger load timeout must be positive")
	}

	if c.Ledger.DemoRows <= 0 {
		return fmt.Errorf("demo rows must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.AMQP.URL != "" && c.AMQP.Queue == "" {
		return fmt.Errorf("amqp queue cannot be empty when amqp url is set")
	}

	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
