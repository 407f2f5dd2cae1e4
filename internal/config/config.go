package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the agent configuration, loaded from a YAML file with
// environment-variable overrides
type Config struct {
	Env string `yaml:"env" env:"WP_ENV" env-default:"local"`

	Log struct {
		Level  string `yaml:"level" env:"WP_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"WP_LOG_FORMAT" env-default:"console"`
	} `yaml:"log"`

	StoragePath string `yaml:"storage_path" env:"WP_STORAGE_PATH" env-default:"workpulse-agent.db"`

	Backend struct {
		BaseURL   string `yaml:"base_url" env:"WP_BACKEND_URL" env-default:"http://localhost:3000"`
		SocketURL string `yaml:"socket_url" env:"WP_SOCKET_URL" env-default:"ws://localhost:3000/ws"`
		Timeout   int    `yaml:"timeout" env:"WP_BACKEND_TIMEOUT" env-default:"15"`
	} `yaml:"backend"`

	Reconnect struct {
		MaxAttempts int `yaml:"max_attempts" env:"WP_RECONNECT_MAX_ATTEMPTS" env-default:"5"`
		BaseDelay   int `yaml:"base_delay" env:"WP_RECONNECT_BASE_DELAY" env-default:"1"`
		MaxDelay    int `yaml:"max_delay" env:"WP_RECONNECT_MAX_DELAY" env-default:"5"`
	} `yaml:"reconnect"`

	Tracking struct {
		IdleThreshold int    `yaml:"idle_threshold" env:"WP_IDLE_THRESHOLD" env-default:"300"`
		CheckInterval int    `yaml:"check_interval" env:"WP_CHECK_INTERVAL" env-default:"60"`
		ContextTTL    int    `yaml:"context_ttl" env:"WP_CONTEXT_TTL" env-default:"120"`
		AppName       string `yaml:"app_name" env:"WP_APP_NAME" env-default:"WorkPulse Agent"`
	} `yaml:"tracking"`

	Alerts struct {
		PollInterval int `yaml:"poll_interval" env:"WP_ALERT_POLL_INTERVAL" env-default:"30"`
	} `yaml:"alerts"`

	Cache struct {
		TTL int `yaml:"ttl" env:"WP_CACHE_TTL" env-default:"30"`
	} `yaml:"cache"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"WP_SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"WP_SERVER_PORT" env-default:"8731"`
	} `yaml:"server"`
}

// LoadConfig reads the configuration file and applies environment overrides.
// A missing file is not an error; defaults and environment are used instead.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	return &cfg, nil
}
