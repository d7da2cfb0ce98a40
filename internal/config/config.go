package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Environment string     `mapstructure:"environment"`
	Port        string     `mapstructure:"port"`
	LogLevelRaw string     `mapstructure:"log_level"`
	LogLevel    slog.Level `mapstructure:"-"`

	// StoreDriver selects the attempt store: postgres or memory.
	StoreDriver string `mapstructure:"store_driver"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	TimerTick   time.Duration `mapstructure:"timer_tick"`
	MaxAttempts int           `mapstructure:"max_attempts"`

	// SeedFile is a YAML file of tests loaded at startup, if set.
	SeedFile string `mapstructure:"seed_file"`

	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Casdoor  CasdoorConfig  `mapstructure:"casdoor"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	InitDataMaxAge time.Duration `mapstructure:"init_data_max_age"`
	// TeacherIDs are Telegram user ids granted the teacher role.
	TeacherIDs []string `mapstructure:"teacher_ids"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type CasdoorConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Cert         string `mapstructure:"cert"`
	Organization string `mapstructure:"organization"`
	Application  string `mapstructure:"application"`
}

// Enabled reports whether Casdoor tokens should be accepted.
func (c CasdoorConfig) Enabled() bool {
	return c.Endpoint != "" && c.ClientID != ""
}

// LoadConfig reads .env (if present), config.yaml (if present) and the
// environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Load(v)
}

// Load applies defaults and environment overrides to v and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelRaw)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevelRaw, err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Telegram.TeacherIDs = splitList(cfg.Telegram.TeacherIDs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_driver", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("timer_tick", "1s")
	v.SetDefault("max_attempts", 1)
	v.SetDefault("seed_file", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.consumer_group", "quiz-attempt-service")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.init_data_max_age", "24h")
	v.SetDefault("telegram.teacher_ids", []string{})

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("jwt.issuer", "quiz-attempt-service")

	v.SetDefault("casdoor.endpoint", "")
	v.SetDefault("casdoor.client_id", "")
	v.SetDefault("casdoor.client_secret", "")
	v.SetDefault("casdoor.cert", "")
	v.SetDefault("casdoor.organization", "")
	v.SetDefault("casdoor.application", "")
}

func (c *Config) Validate() error {
	var problems []string

	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.StoreDriver))
	}
	if c.TimerTick <= 0 {
		problems = append(problems, "TIMER_TICK must be positive")
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "MAX_ATTEMPTS must be at least 1")
	}
	if c.JWT.TTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	if c.IsProduction() {
		if c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret {
			problems = append(problems, "JWT_SECRET must be set in production")
		}
		if c.Telegram.BotToken == "" {
			problems = append(problems, "TELEGRAM_BOT_TOKEN must be set in production")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// splitList accepts both real lists and a single comma-separated entry.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
