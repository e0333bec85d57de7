package processturn

import "time"

type Config struct {
	Timeout          time.Duration
	MaxMessageLength int
}

// LoadConfig returns the default worker settings.
func LoadConfig() *Config {
	return &Config{
		Timeout:          30 * time.Second,
		MaxMessageLength: 2000,
	}
}
