// Package config loads the engine's configuration: built-in defaults, a
// JSON/YAML file path, then environment variable overrides, per
// SPEC_FULL.md §2 ("Configuration").
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// HTTPConfig is the §6 `http.*` key group.
type HTTPConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Threads int    `mapstructure:"threads"`
}

// BusConfig is the §6 `redpanda.*` key group (named for the source's
// Kafka-API-compatible broker; any Kafka-protocol broker works).
type BusConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// StatisticsConfig is the §6 `statistics.*` key group.
type StatisticsConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	QueueCapacity   int      `mapstructure:"queue_capacity"`
	CleanupInterval int      `mapstructure:"cleanup_interval"`
	Timeframes      []string `mapstructure:"timeframes"`
}

// EngineConfig is SPEC_FULL.md's additive `engine.*` key group (open
// question 5: configurable starting cash).
type EngineConfig struct {
	DefaultStartingCash string `mapstructure:"default_starting_cash"`
}

// ValidationConfig is SPEC_FULL.md's additive `validation.*` key group
// backing C7's configurable limits.
type ValidationConfig struct {
	Symbols    []string `mapstructure:"symbols"`
	MinQty     string   `mapstructure:"min_qty"`
	MaxQty     string   `mapstructure:"max_qty"`
	MinPrice   string   `mapstructure:"min_price"`
	MaxPrice   string   `mapstructure:"max_price"`
	MarketOpen bool     `mapstructure:"market_open"`
}

// LoggingConfig is SPEC_FULL.md's additive `logging.*` key group for the
// async file sinks (§4.2).
type LoggingConfig struct {
	TradeLogPath     string `mapstructure:"trade_log_path"`
	ExecutionLogPath string `mapstructure:"execution_log_path"`
	AppLogPath       string `mapstructure:"app_log_path"`
	Level            string `mapstructure:"level"`
}

// CacheConfig is SPEC_FULL.md's additive `cache.*` key group for the
// read-path redis cache with in-memory fallback.
type CacheConfig struct {
	RedisAddress string `mapstructure:"redis_address"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
}

// Config is the engine's fully-resolved configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Bus        BusConfig        `mapstructure:"redpanda"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

// DefaultConfigPath is used when no path argument is supplied on the CLI.
const DefaultConfigPath = "config/trading_engine.json"

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.threads", 4)

	v.SetDefault("redpanda.brokers", []string{"localhost:9092"})

	v.SetDefault("statistics.enabled", true)
	v.SetDefault("statistics.queue_capacity", 10000)
	v.SetDefault("statistics.cleanup_interval", 3600)
	v.SetDefault("statistics.timeframes", []string{"1m", "1h", "1d"})

	v.SetDefault("engine.default_starting_cash", "0")

	v.SetDefault("validation.symbols", []string{})
	v.SetDefault("validation.min_qty", "0.00000001")
	v.SetDefault("validation.max_qty", "1000000000")
	v.SetDefault("validation.min_price", "0.00000001")
	v.SetDefault("validation.max_price", "1000000000")
	v.SetDefault("validation.market_open", true)

	v.SetDefault("logging.trade_log_path", "logs/trades.log")
	v.SetDefault("logging.execution_log_path", "logs/executions.log")
	v.SetDefault("logging.app_log_path", "logs/app.log")
	v.SetDefault("logging.level", "INFO")

	v.SetDefault("cache.redis_address", "")
	v.SetDefault("cache.ttl_seconds", 5)
}

// Load reads defaults, then path (if it exists; a missing config file is
// not an error — defaults plus env vars are a valid configuration), then
// environment variables prefixed TRADING_ (e.g. TRADING_HTTP_PORT).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of a .env file is not an error

	if path == "" {
		path = DefaultConfigPath
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TRADING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
