package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid engine.timezone %q: %w", c.Engine.Timezone, err)
	}

	if c.Telegram.Mode != "off" && c.Telegram.ListenerToken == "" {
		return fmt.Errorf("telegram.listener_token is required when telegram.mode is %q", c.Telegram.Mode)
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("scheduler task %q is enabled but has no schedule", name)
		}
	}

	return nil
}
