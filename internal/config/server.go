package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey  string `env:"LLM_API_KEY"`
	ModelsPath string `env:"MODELS_CONFIG_PATH" envDefault:"config/models.yaml"`

	MovePaceMS           int `env:"MOVE_PACE_MS" envDefault:"1500"`
	RateLimitSnoozeMins  int `env:"RATE_LIMIT_SNOOZE_MINUTES" envDefault:"10"`
	HeartbeatSeconds     int `env:"HEARTBEAT_SECONDS" envDefault:"30"`
	MatchIdleTimeoutMins int `env:"MATCH_IDLE_TIMEOUT_MINUTES" envDefault:"60"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
