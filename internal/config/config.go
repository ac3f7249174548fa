package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	DBName   string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type StreamConfig struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	Buffer            int
}

type PushConfig struct {
	Always          bool
	Concurrency     int
	Timeout         time.Duration
	TTL             int
	StaleAfter      time.Duration
	Icon            string
	DeepLinkBase    string
	VAPIDSubscriber string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	FirebaseProject string
	FirebaseCreds   string
}

type RetentionConfig struct {
	Interval  time.Duration
	ReadAfter time.Duration
	MaxAge    time.Duration
}

type Config struct {
	Port           string
	StorageDriver  string
	LogOutputPaths []string
	AccessSecret   string
	RedisAddr      string
	RabbitMQURL    string
	IdempotencyTTL time.Duration
	RateLimit      float64
	RateBurst      int
	DB             DBConfig
	Stream         StreamConfig
	Push           PushConfig
	Retention      RetentionConfig
}

// LoadEnv loads .env when present. A missing file is not an error: in
// containers the variables come from the environment directly.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("ratelimit.per_second", 5.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("stream.heartbeat_interval", 30*time.Second)
	v.SetDefault("stream.write_timeout", 10*time.Second)
	v.SetDefault("stream.buffer", 64)

	v.SetDefault("push.always", false)
	v.SetDefault("push.concurrency", 16)
	v.SetDefault("push.timeout", 10*time.Second)
	v.SetDefault("push.ttl", 86400)
	v.SetDefault("push.stale_after", 60*24*time.Hour)
	v.SetDefault("push.icon", "/icons/icon-192.png")

	v.SetDefault("retention.interval", 12*time.Hour)
	v.SetDefault("retention.read_after", 30*24*time.Hour)
	v.SetDefault("retention.max_age", 180*24*time.Hour)
}

func newViper(dir, name string) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigType("yaml")
	v.SetConfigName(name)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// Load reads <dir>/app.yaml (optional) on top of the built-in defaults.
// Secrets are only ever taken from the environment.
func Load(dir string) (*Config, error) {
	v := newViper(dir, "app")
	setDefaults(v)
	if err := readConfig(v); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Port:           v.GetString("app.port"),
		StorageDriver:  v.GetString("storage.driver"),
		LogOutputPaths: v.GetStringSlice("log.output_paths"),
		AccessSecret:   os.Getenv("ACCESS_SECRET"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitMQURL:    os.Getenv("RABBITMQ_CONN_STRING"),
		IdempotencyTTL: v.GetDuration("idempotency.ttl"),
		RateLimit:      v.GetFloat64("ratelimit.per_second"),
		RateBurst:      v.GetInt("ratelimit.burst"),
		DB: DBConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     os.Getenv("POSTGRES_PORT"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
		},
		Stream: StreamConfig{
			HeartbeatInterval: v.GetDuration("stream.heartbeat_interval"),
			WriteTimeout:      v.GetDuration("stream.write_timeout"),
			Buffer:            v.GetInt("stream.buffer"),
		},
		Push: PushConfig{
			Always:          v.GetBool("push.always"),
			Concurrency:     v.GetInt("push.concurrency"),
			Timeout:         v.GetDuration("push.timeout"),
			TTL:             v.GetInt("push.ttl"),
			StaleAfter:      v.GetDuration("push.stale_after"),
			Icon:            v.GetString("push.icon"),
			DeepLinkBase:    v.GetString("push.deep_link_base"),
			VAPIDSubscriber: v.GetString("push.vapid_subscriber"),
			FirebaseProject: v.GetString("push.firebase_project"),
		},
		Retention: RetentionConfig{
			Interval:  v.GetDuration("retention.interval"),
			ReadAfter: v.GetDuration("retention.read_after"),
			MaxAge:    v.GetDuration("retention.max_age"),
		},
	}
	cfg.Push.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.Push.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.Push.FirebaseCreds = os.Getenv("FIREBASE_CREDENTIALS_FILE")

	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is not set")
	}
	if cfg.StorageDriver != "postgres" && cfg.StorageDriver != "memory" {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	return cfg, nil
}
