// Package config loads the projector's YAML configuration via viper,
// following the teacher's LoadConfig/BuildDSN pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the projector.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	DSN      string // built from the other fields
}

// RedisConfig holds the Redis Streams connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ConsumerConfig holds the knobs shared by the three stream consumers
// (transaction:created, transaction:updated, transaction:deleted).
type ConsumerConfig struct {
	Group                string        `mapstructure:"group"`
	ConsumerName         string        `mapstructure:"consumer_name"`
	BlockMs              int           `mapstructure:"block_ms"`
	ReadCount            int64         `mapstructure:"read_count"`
	MaxRetries           int           `mapstructure:"max_retries"`
	ReplayDelaySeconds   int           `mapstructure:"replay_delay_seconds"`
	MaxReplayAttempts    int           `mapstructure:"max_replay_attempts"`
	Parallelism          int           `mapstructure:"parallelism"`
	BufferSize           int           `mapstructure:"buffer_size"`
	DLQSuffix            string        `mapstructure:"dlq_suffix"`
	ReclaimInterval      time.Duration `mapstructure:"reclaim_interval"`
	ReclaimIdleThreshold time.Duration `mapstructure:"reclaim_idle_threshold"`
}

// LoadConfig reads configuration from a config.yaml under path,
// overridable by environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("consumer.group", "portfolio-consumers")
	viper.SetDefault("consumer.consumer_name", "")
	viper.SetDefault("consumer.block_ms", 5000)
	viper.SetDefault("consumer.read_count", 50)
	viper.SetDefault("consumer.max_retries", 5)
	viper.SetDefault("consumer.replay_delay_seconds", 10)
	viper.SetDefault("consumer.max_replay_attempts", 3)
	viper.SetDefault("consumer.parallelism", 4)
	viper.SetDefault("consumer.buffer_size", 256)
	viper.SetDefault("consumer.dlq_suffix", "dlq")
	viper.SetDefault("consumer.reclaim_interval", "30s")
	viper.SetDefault("consumer.reclaim_idle_threshold", "60s")
	viper.SetDefault("redis.db", 0)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Consumer.ConsumerName == "" {
		config.Consumer.ConsumerName = defaultConsumerName()
	}

	config.Database.BuildDSN()

	return &config, nil
}

// defaultConsumerName derives a per-instance consumer identity from the
// host plus a random suffix, per spec.md §6 — a static default would
// give every horizontally-scaled worker the same name within the
// consumer group, defeating exclusive delivery.
func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

// BuildDSN constructs the database connection string.
func (dc *DatabaseConfig) BuildDSN() {
	dc.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dc.Host,
		dc.Port,
		dc.User,
		dc.Password,
		dc.DBName,
		dc.SSLMode,
	)
}
