// internal/workers/decision/synthesize-recommendation/config.go
package synthesizerecommendation

import "time"

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    90 * time.Second,
		MaxRetries: 3,
	}
}
