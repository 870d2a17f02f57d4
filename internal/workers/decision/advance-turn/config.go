// internal/workers/decision/advance-turn/config.go
package advanceturn

import "time"

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}
