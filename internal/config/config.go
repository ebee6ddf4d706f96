// Package config provides process configuration loading and validation for piyasabot.
// Runtime tunables of the behavior engine are NOT here; they live in the settings table.
package config

import "time"

// Config defines the process-level configuration for every component.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Engine    EngineConfig    `mapstructure:"engine"`
	ConfigBus ConfigBusConfig `mapstructure:"config_bus"`
	Security  SecurityConfig  `mapstructure:"security"`
	News      NewsConfig      `mapstructure:"news"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RedisConfig holds the shared key/value backend address. An empty Addr disables L2
// caching and the shared queues fall back to in-process lists.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// GeminiConfig holds LLM settings.
type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	ModelName      string        `mapstructure:"model_name" validate:"required"`
	FallbackModel  string        `mapstructure:"fallback_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"min=1s,max=5m"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// TelegramConfig controls transport behavior and inbound intake.
type TelegramConfig struct {
	// ListenerToken is the bot whose updates feed the priority queue. Empty disables intake.
	ListenerToken  string        `mapstructure:"listener_token"`
	Mode           string        `mapstructure:"mode" validate:"required,oneof=poll webhook off"`
	WebhookAddr    string        `mapstructure:"webhook_addr" validate:"required_if=Mode webhook"`
	WebhookURL     string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
}

// EngineConfig holds worker sharding and loop settings.
type EngineConfig struct {
	WorkerID         int    `mapstructure:"worker_id" validate:"gte=0,ltfield=TotalWorkers"`
	TotalWorkers     int    `mapstructure:"total_workers" validate:"gte=1"`
	Timezone         string `mapstructure:"timezone" validate:"required"`
	ConsistencyGuard bool   `mapstructure:"consistency_guard"`
}

// ConfigBusConfig selects the broadcast channel for config-update events.
type ConfigBusConfig struct {
	Backend      string   `mapstructure:"backend" validate:"required,oneof=redis kafka none"`
	Channel      string   `mapstructure:"channel" validate:"required_if=Backend redis"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"required_if=Backend kafka"`
	KafkaTopic   string   `mapstructure:"kafka_topic" validate:"required_if=Backend kafka"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// SecurityConfig holds the key used to decrypt stored bot credentials.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// NewsConfig controls the RSS briefer.
type NewsConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"min=1s"`
	MaxItems     int           `mapstructure:"max_items" validate:"gte=1"`
}

// TaskConfig holds settings for a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Location resolves the engine timezone, falling back to UTC if it is unknown.
func (c EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
