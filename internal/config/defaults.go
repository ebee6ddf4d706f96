package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultDBPath = "piyasabot.db"

	DefaultGeminiModel          = "gemini-2.0-flash"
	DefaultGeminiFallbackModel  = "gemini-1.5-flash"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultGeminiTimeout        = 30 * time.Second
	DefaultGeminiMaxRetries     = 3
	DefaultGeminiRetryDelay     = time.Second

	DefaultTelegramMode           = "off"
	DefaultTelegramRequestTimeout = 20 * time.Second

	DefaultTimezone = "Europe/Istanbul"

	DefaultConfigBusBackend = "none"
	DefaultConfigBusChannel = "config_updates"

	DefaultNewsFetchTimeout = 10 * time.Second
	DefaultNewsMaxItems     = 3
)

// DefaultTasks are registered when the config file names no scheduler tasks.
var DefaultTasks = map[string]TaskConfig{
	"settings_refresh": {Enabled: true, Schedule: "*/15 * * * * *"},
	"memory_decay":     {Enabled: true, Schedule: "0 0 * * * *"},
	"sql_maintenance":  {Enabled: true, Schedule: "0 30 4 * * *"},
	"queue_report":     {Enabled: true, Schedule: "0 */5 * * * *"},
}
