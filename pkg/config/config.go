package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Store      StoreConfig
	LLM        LLMConfig
	Monitoring MonitoringConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins string
	// Development disables HSTS so the API can be served over plain HTTP.
	Development bool
}

type StorageConfig struct {
	// Driver selects the slot backend: sqlite, redis or memory.
	Driver string
	// MaxSlotBytes caps a single serialized collection. 0 disables the cap.
	MaxSlotBytes int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type StoreConfig struct {
	PositionCap    int
	VariabilityCap int
	Roster         []string
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	// Providers maps a roster name (ChatGPT, Claude, ...) to the model
	// queried on its behalf.
	Providers map[string]string
}

type MonitoringConfig struct {
	Enabled     bool
	TickSeconds int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads an explicit config file when path is set, otherwise it
// searches the default locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/aeo-tracker")
	}

	v.SetEnvPrefix("AEO_TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}
	if c.Store.PositionCap <= 0 || c.Store.VariabilityCap <= 0 {
		return fmt.Errorf("store caps must be positive")
	}
	if len(c.Store.Roster) == 0 {
		return fmt.Errorf("store roster must not be empty")
	}
	if c.Monitoring.Enabled && c.Monitoring.TickSeconds <= 0 {
		return fmt.Errorf("monitoring tick must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", "*")
	v.SetDefault("server.development", false)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.maxSlotBytes", 5242880)

	v.SetDefault("sqlite.path", "./data/aeo_tracker.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "aeo")

	v.SetDefault("store.positionCap", 1000)
	v.SetDefault("store.variabilityCap", 100)
	v.SetDefault("store.roster", []string{"ChatGPT", "Claude", "Gemini", "Perplexity", "You.com"})

	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 800)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.providers", map[string]string{
		"ChatGPT": "gpt-4o-mini",
	})

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.tickSeconds", 60)

	v.SetDefault("ratelimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
