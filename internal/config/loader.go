package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfiguration wraps every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

// LoadConfig loads and validates configuration from, in increasing precedence:
// 1. Default values
// 2. the YAML file at path (optional)
// 3. PIYASABOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PIYASABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if len(cfg.Scheduler.Tasks) == 0 {
		cfg.Scheduler.Tasks = make(map[string]TaskConfig, len(DefaultTasks))
		for name, task := range DefaultTasks {
			cfg.Scheduler.Tasks[name] = task
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

// setDefaults registers every key so that environment overrides work without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", DefaultGeminiModel)
	v.SetDefault("gemini.fallback_model", DefaultGeminiFallbackModel)
	v.SetDefault("gemini.embedding_model", DefaultGeminiEmbeddingModel)
	v.SetDefault("gemini.timeout", DefaultGeminiTimeout)
	v.SetDefault("gemini.max_retries", DefaultGeminiMaxRetries)
	v.SetDefault("gemini.retry_delay", DefaultGeminiRetryDelay)

	v.SetDefault("telegram.listener_token", "")
	v.SetDefault("telegram.mode", DefaultTelegramMode)
	v.SetDefault("telegram.webhook_addr", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.request_timeout", DefaultTelegramRequestTimeout)

	v.SetDefault("engine.worker_id", 0)
	v.SetDefault("engine.total_workers", 1)
	v.SetDefault("engine.timezone", DefaultTimezone)
	v.SetDefault("engine.consistency_guard", true)

	v.SetDefault("config_bus.backend", DefaultConfigBusBackend)
	v.SetDefault("config_bus.channel", DefaultConfigBusChannel)
	v.SetDefault("config_bus.kafka_brokers", []string{})
	v.SetDefault("config_bus.kafka_topic", "")
	v.SetDefault("config_bus.kafka_group_id", "piyasabot")

	v.SetDefault("security.encryption_key", "")

	v.SetDefault("news.fetch_timeout", DefaultNewsFetchTimeout)
	v.SetDefault("news.max_items", DefaultNewsMaxItems)
}
