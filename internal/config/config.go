package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server and the worker.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Status   StatusConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Pipeline PipelineConfig
	Poll     PollConfig
	Janitor  JanitorConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"API_PORT" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"API_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"API_WRITE_TIMEOUT"`
	RateLimit    int           `mapstructure:"API_RATE_LIMIT" validate:"min=1"`
	MaxBodyBytes int64         `mapstructure:"API_MAX_BODY_BYTES" validate:"min=1"`
	GinMode      string        `mapstructure:"GIN_MODE" validate:"oneof=debug release test"`
}

type StorageConfig struct {
	Backend         string `mapstructure:"STORAGE_BACKEND" validate:"oneof=local s3"`
	TmpDir          string `mapstructure:"TMP_DIR" validate:"required"`
	PublicMediaPath string `mapstructure:"PUBLIC_MEDIA_PATH" validate:"required,startswith=/"`
	Bucket          string `mapstructure:"SPACES_BUCKET" validate:"required_if=Backend s3"`
	Endpoint        string `mapstructure:"SPACES_ENDPOINT"`
	Region          string `mapstructure:"SPACES_REGION"`
	AccessKey       string `mapstructure:"SPACES_KEY"`
	SecretKey       string `mapstructure:"SPACES_SECRET"`
	PublicURL       string `mapstructure:"SPACES_PUBLIC_URL"`
}

type StatusConfig struct {
	Backend string        `mapstructure:"STATUS_BACKEND" validate:"oneof=file memory redis"`
	LockTTL time.Duration `mapstructure:"LOCK_TTL"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"DATABASE_URL"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"RABBITMQ_URL"`
}

type RedisConfig struct {
	URL string `mapstructure:"REDIS_URL"`
}

type WorkerConfig struct {
	PoolSize    int `mapstructure:"WORKER_POOL_SIZE" validate:"min=1"`
	MetricsPort int `mapstructure:"WORKER_METRICS_PORT"`
}

type PipelineConfig struct {
	YtDlpPath   string        `mapstructure:"PIPELINE_YTDLP_PATH" validate:"required"`
	FfmpegPath  string        `mapstructure:"PIPELINE_FFMPEG_PATH" validate:"required"`
	Timeout     time.Duration `mapstructure:"PIPELINE_TIMEOUT"`
	MaxDuration int           `mapstructure:"PIPELINE_MAX_DURATION" validate:"min=1"`
	FPS         int           `mapstructure:"PIPELINE_FPS" validate:"min=1"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"POLL_INTERVAL"`
	MaxAttempts int           `mapstructure:"POLL_MAX_ATTEMPTS" validate:"min=1"`
}

type JanitorConfig struct {
	Schedule string        `mapstructure:"JANITOR_SCHEDULE"`
	MaxAge   time.Duration `mapstructure:"JANITOR_MAX_AGE"`
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	// Attempt to read .env file (non-fatal if missing)
	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("API_READ_TIMEOUT", "10s")
	v.SetDefault("API_WRITE_TIMEOUT", "30s")
	v.SetDefault("API_RATE_LIMIT", 100)
	v.SetDefault("API_MAX_BODY_BYTES", 64<<10)
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("TMP_DIR", "./var/tmp")
	v.SetDefault("PUBLIC_MEDIA_PATH", "/media")
	v.SetDefault("SPACES_REGION", "us-east-1")
	v.SetDefault("STATUS_BACKEND", "file")
	v.SetDefault("LOCK_TTL", "20m")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("WORKER_POOL_SIZE", 2)
	v.SetDefault("WORKER_METRICS_PORT", 9091)
	v.SetDefault("PIPELINE_YTDLP_PATH", "yt-dlp")
	v.SetDefault("PIPELINE_FFMPEG_PATH", "ffmpeg")
	v.SetDefault("PIPELINE_TIMEOUT", "300s")
	v.SetDefault("PIPELINE_MAX_DURATION", 180)
	v.SetDefault("PIPELINE_FPS", 1)
	v.SetDefault("POLL_INTERVAL", "2s")
	v.SetDefault("POLL_MAX_ATTEMPTS", 120)
	v.SetDefault("JANITOR_SCHEDULE", "@every 15m")
	v.SetDefault("JANITOR_MAX_AGE", "1h")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Port = v.GetInt("API_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("API_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("API_WRITE_TIMEOUT")
	cfg.Server.RateLimit = v.GetInt("API_RATE_LIMIT")
	cfg.Server.MaxBodyBytes = v.GetInt64("API_MAX_BODY_BYTES")
	cfg.Server.GinMode = v.GetString("GIN_MODE")

	cfg.Storage.Backend = v.GetString("STORAGE_BACKEND")
	cfg.Storage.PublicMediaPath = v.GetString("PUBLIC_MEDIA_PATH")
	cfg.Storage.Bucket = v.GetString("SPACES_BUCKET")
	cfg.Storage.Endpoint = v.GetString("SPACES_ENDPOINT")
	cfg.Storage.Region = v.GetString("SPACES_REGION")
	cfg.Storage.AccessKey = v.GetString("SPACES_KEY")
	cfg.Storage.SecretKey = v.GetString("SPACES_SECRET")
	cfg.Storage.PublicURL = v.GetString("SPACES_PUBLIC_URL")

	tmpDir, err := homedir.Expand(v.GetString("TMP_DIR"))
	if err != nil {
		return nil, fmt.Errorf("config: expand TMP_DIR: %w", err)
	}
	cfg.Storage.TmpDir = tmpDir

	cfg.Status.Backend = v.GetString("STATUS_BACKEND")
	cfg.Status.LockTTL = v.GetDuration("LOCK_TTL")
	cfg.Database.URL = v.GetString("DATABASE_URL")
	cfg.RabbitMQ.URL = v.GetString("RABBITMQ_URL")
	cfg.Redis.URL = v.GetString("REDIS_URL")

	cfg.Worker.PoolSize = v.GetInt("WORKER_POOL_SIZE")
	cfg.Worker.MetricsPort = v.GetInt("WORKER_METRICS_PORT")

	cfg.Pipeline.YtDlpPath = v.GetString("PIPELINE_YTDLP_PATH")
	cfg.Pipeline.FfmpegPath = v.GetString("PIPELINE_FFMPEG_PATH")
	cfg.Pipeline.Timeout = v.GetDuration("PIPELINE_TIMEOUT")
	cfg.Pipeline.MaxDuration = v.GetInt("PIPELINE_MAX_DURATION")
	cfg.Pipeline.FPS = v.GetInt("PIPELINE_FPS")

	cfg.Poll.Interval = v.GetDuration("POLL_INTERVAL")
	cfg.Poll.MaxAttempts = v.GetInt("POLL_MAX_ATTEMPTS")

	cfg.Janitor.Schedule = v.GetString("JANITOR_SCHEDULE")
	cfg.Janitor.MaxAge = v.GetDuration("JANITOR_MAX_AGE")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values and the combinations between them.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Status.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("config: STATUS_BACKEND=redis requires REDIS_URL")
	}
	// With a broker, submissions and workers run in different processes and
	// must share job locks and statuses.
	if c.RabbitMQ.URL != "" {
		if c.Redis.URL == "" {
			return fmt.Errorf("config: RABBITMQ_URL requires REDIS_URL for shared job locks")
		}
		if c.Status.Backend == "memory" {
			return fmt.Errorf("config: STATUS_BACKEND=memory cannot be used with RABBITMQ_URL")
		}
	}
	return nil
}
