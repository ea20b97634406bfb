package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-sourced setting the core consumes. There is
// no YAML file for this system — env vars are the sole source, matching the
// container-native deployment model the launch contract assumes.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	RedisHost string `mapstructure:"redis_host"`
	RedisPort int    `mapstructure:"redis_port"`

	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`

	BotImageName      string `mapstructure:"bot_image_name"`
	DockerNetwork     string `mapstructure:"docker_network"`
	DockerSocketPath  string `mapstructure:"docker_socket_path"`
	TranscriptionURL  string `mapstructure:"transcription_service_url"`

	LockTTLSeconds            int `mapstructure:"lock_ttl_seconds"`
	DedupTTLCompletedSeconds  int `mapstructure:"dedup_ttl_completed_seconds"`
	DedupTTLPartialSeconds    int `mapstructure:"dedup_ttl_partial_seconds"`

	HTTPAddr     string `mapstructure:"http_addr"`
	IngestorAddr string `mapstructure:"ingestor_addr"`

	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

// LockTTL returns the configured triple lock TTL as a time.Duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// DedupTTLCompleted returns the segment-dedup TTL applied to completed segments.
func (c *Config) DedupTTLCompleted() time.Duration {
	return time.Duration(c.DedupTTLCompletedSeconds) * time.Second
}

// DedupTTLPartial returns the cache TTL applied to not-yet-completed segments.
func (c *Config) DedupTTLPartial() time.Duration {
	return time.Duration(c.DedupTTLPartialSeconds) * time.Second
}

// Load reads configuration from the environment, applying defaults for
// anything unset, in the teacher's viper-driven pattern generalized from a
// config-file-plus-overrides shape to a pure env-var shape.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "meetbot")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("bot_image_name", "meetbot/worker:latest")
	v.SetDefault("docker_network", "meetbot-net")
	v.SetDefault("docker_socket_path", "unix:///var/run/docker.sock")
	v.SetDefault("transcription_service_url", "ws://transcription-worker:9090")

	v.SetDefault("lock_ttl_seconds", 60)
	v.SetDefault("dedup_ttl_completed_seconds", 300)
	v.SetDefault("dedup_ttl_partial_seconds", 1800)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("ingestor_addr", ":8081")

	v.SetDefault("rate_limit_per_second", 2.0)
	v.SetDefault("rate_limit_burst", 5)

	bindEnv(v,
		"log_level", "LOG_LEVEL",
		"redis_host", "REDIS_HOST",
		"redis_port", "REDIS_PORT",
		"db_host", "DB_HOST",
		"db_port", "DB_PORT",
		"db_user", "DB_USER",
		"db_password", "DB_PASSWORD",
		"db_name", "DB_NAME",
		"db_sslmode", "DB_SSLMODE",
		"bot_image_name", "BOT_IMAGE_NAME",
		"docker_network", "DOCKER_NETWORK",
		"docker_socket_path", "DOCKER_SOCKET_PATH",
		"transcription_service_url", "TRANSCRIPTION_SERVICE_URL",
		"lock_ttl_seconds", "LOCK_TTL_SECONDS",
		"dedup_ttl_completed_seconds", "DEDUP_TTL_COMPLETED_SECONDS",
		"dedup_ttl_partial_seconds", "DEDUP_TTL_PARTIAL_SECONDS",
		"http_addr", "HTTP_ADDR",
		"ingestor_addr", "INGESTOR_ADDR",
		"rate_limit_per_second", "RATE_LIMIT_PER_SECOND",
		"rate_limit_burst", "RATE_LIMIT_BURST",
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, pairs ...string) {
	for i := 0; i < len(pairs); i += 2 {
		_ = v.BindEnv(pairs[i], pairs[i+1])
	}
}
