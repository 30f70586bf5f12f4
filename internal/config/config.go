package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const envPrefix = "HIRING"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Notification NotificationConfig `mapstructure:"notification"`
	Email        EmailConfig        `mapstructure:"email"`
	Events       EventsConfig       `mapstructure:"events"`
	Digest       DigestConfig       `mapstructure:"digest"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
	// WorkerPort serves health and metrics for the digest worker process.
	WorkerPort      int           `mapstructure:"worker_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// PublicURL is the base URL of the web application, used for links in emails.
	PublicURL string `mapstructure:"public_url" validate:"required,url"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// TrustUserHeader accepts X-User-ID from an authenticating gateway when no
	// JWT secret is configured.
	TrustUserHeader bool `mapstructure:"trust_user_header"`
}

type RateLimitClass struct {
	Limit  int           `mapstructure:"limit" validate:"min=1"`
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
}

type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend       string         `mapstructure:"backend" validate:"oneof=memory redis"`
	StoreTimeout  time.Duration  `mapstructure:"store_timeout" validate:"gt=0"`
	KeyPrefix     string         `mapstructure:"key_prefix"`
	OutboundEmail RateLimitClass `mapstructure:"outbound_email"`
	API           RateLimitClass `mapstructure:"api"`
	Auth          RateLimitClass `mapstructure:"auth"`
}

type NotificationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SendTimeout  time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"min=1"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff" validate:"gt=0"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff" validate:"gtefield=BaseBackoff"`
	Jitter       float64       `mapstructure:"jitter" validate:"min=0,max=1"`
	// RateIdentity is the limiter identity outbound deliveries are counted against.
	RateIdentity string `mapstructure:"rate_identity" validate:"required"`
}

type EmailConfig struct {
	// Driver is "http", "smtp" or "log".
	Driver   string        `mapstructure:"driver" validate:"oneof=http smtp log"`
	From     string        `mapstructure:"from" validate:"required"`
	ReplyTo  string        `mapstructure:"reply_to"`
	Endpoint string        `mapstructure:"endpoint" validate:"required_if=Driver http"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// RatePerSecond throttles calls to the HTTP provider; 0 disables it.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"min=0"`

	SMTPHost     string `mapstructure:"smtp_host" validate:"required_if=Driver smtp"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`

	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
}

type EventsConfig struct {
	// Broker is "memory" or "redis".
	Broker  string `mapstructure:"broker" validate:"oneof=memory redis"`
	Channel string `mapstructure:"channel" validate:"required"`
	// Group is the consumer group dispatchers join; replicas share it.
	Group      string `mapstructure:"group" validate:"required"`
	BufferSize int    `mapstructure:"buffer_size" validate:"min=1"`
	// StreamMaxLen caps the redis stream; 0 leaves it unbounded.
	StreamMaxLen int64         `mapstructure:"stream_max_len" validate:"min=0"`
	ClaimIdle    time.Duration `mapstructure:"claim_idle" validate:"gt=0"`
}

type DigestConfig struct {
	Schedule string        `mapstructure:"schedule" validate:"required"`
	Timezone string        `mapstructure:"timezone"`
	Lookback time.Duration `mapstructure:"lookback" validate:"gt=0"`
	MaxJobs  int           `mapstructure:"max_jobs" validate:"min=1"`
	PageSize int           `mapstructure:"page_size" validate:"min=1"`
}

// Secrets are read from the environment only and override file values.
type Secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	EmailAPIKey      string `envconfig:"EMAIL_API_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "hiring")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.max_retries", 2)
	v.SetDefault("redis.retry_backoff", 50*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	v.SetDefault("log.level", "info")

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.store_timeout", 250*time.Millisecond)
	v.SetDefault("rate_limit.key_prefix", "ratelimit")
	v.SetDefault("rate_limit.outbound_email.limit", 10)
	v.SetDefault("rate_limit.outbound_email.window", time.Minute)
	v.SetDefault("rate_limit.api.limit", 100)
	v.SetDefault("rate_limit.api.window", time.Minute)
	v.SetDefault("rate_limit.auth.limit", 5)
	v.SetDefault("rate_limit.auth.window", 15*time.Minute)

	v.SetDefault("notification.poll_interval", 5*time.Second)
	v.SetDefault("notification.send_timeout", 10*time.Second)
	v.SetDefault("notification.max_attempts", 3)
	v.SetDefault("notification.base_backoff", 5*time.Second)
	v.SetDefault("notification.max_backoff", 5*time.Minute)
	v.SetDefault("notification.jitter", 0.1)
	v.SetDefault("notification.rate_identity", "notifications@hiring")

	v.SetDefault("email.driver", "log")
	v.SetDefault("email.from", "Hiring Team <no-reply@example.com>")
	v.SetDefault("email.timeout", 10*time.Second)
	v.SetDefault("email.rate_per_second", 5)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.breaker_failures", 5)
	v.SetDefault("email.breaker_timeout", 30*time.Second)

	v.SetDefault("events.broker", "memory")
	v.SetDefault("events.channel", "application.events")
	v.SetDefault("events.group", "dispatcher")
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.stream_max_len", 10000)
	v.SetDefault("events.claim_idle", time.Minute)

	v.SetDefault("digest.schedule", "0 9 * * MON")
	v.SetDefault("digest.timezone", "UTC")
	v.SetDefault("digest.lookback", 7*24*time.Hour)
	v.SetDefault("digest.max_jobs", 10)
	v.SetDefault("digest.page_size", 200)
}

// LoadConfig reads config.yml from the search paths (or the explicit file),
// applies HIRING_* environment overrides and validates the result. A missing
// config file is not an error; defaults apply.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.EmailAPIKey != "" {
		c.Email.APIKey = s.EmailAPIKey
	}
	if s.SMTPPassword != "" {
		c.Email.SMTPPassword = s.SMTPPassword
	}
	if s.JWTSecret != "" {
		c.Auth.JWTSecret = s.JWTSecret
	}
}

// Validate checks struct constraints and the cross-section requirements
// struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	needsRedis := c.RateLimit.Backend == "redis" || c.Events.Broker == "redis"
	if needsRedis && c.Redis.URL == "" {
		return fmt.Errorf("invalid config: redis.url is required when a redis backend is selected")
	}
	return nil
}
