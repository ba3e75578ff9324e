package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// MissingError reports a required configuration key that is absent. It is
// fatal at startup and at story selection.
type MissingError struct {
	Scope string // "global" or "story"
	Key   string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s configuration missing: %s", e.Scope, e.Key)
}

type Config struct {
	Port     int    `envconfig:"VELLUM_PORT" default:"8760"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:"vellum.log"`
	DataDir  string `envconfig:"VELLUM_DATA_DIR" default:"data"`

	LLMProvider       string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY"`
	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1"`
	LLMModel          string        `envconfig:"LLM_MODEL" default:"deepseek/deepseek-v3.1-terminus"`
	LLMMaxTokens      int           `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	LLMRequestTimeout time.Duration `envconfig:"LLM_REQUEST_TIMEOUT" default:"150s"`
	LLMConnectTimeout time.Duration `envconfig:"LLM_CONNECT_TIMEOUT" default:"30s"`
	LLMIdleTimeout    time.Duration `envconfig:"LLM_IDLE_TIMEOUT" default:"90s"`

	TextDelay    time.Duration `envconfig:"TEXT_DELAY" default:"50ms"`
	EndTextDelay time.Duration `envconfig:"END_TEXT_DELAY" default:"30ms"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`
	NatsURL     string `envconfig:"NATS_URL"`
	NatsToken   string `envconfig:"NATS_TOKEN"`
	APIToken    string `envconfig:"VELLUM_API_TOKEN"`
	AudioPlayer string `envconfig:"AUDIO_PLAYER"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	return cfg, nil
}

// Validate checks the keys the engine cannot start without.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.LLMAPIKey == "" {
			return &MissingError{Scope: "global", Key: "LLM_API_KEY"}
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMModel == "" {
		return &MissingError{Scope: "global", Key: "LLM_MODEL"}
	}
	if c.LLMRequestTimeout <= 0 {
		return fmt.Errorf("LLM_REQUEST_TIMEOUT must be positive, got %s", c.LLMRequestTimeout)
	}
	return nil
}

func (c Config) StoriesDir() string {
	return filepath.Join(c.DataDir, "stories")
}

func (c Config) SoundsDir() string {
	return filepath.Join(c.DataDir, "sounds")
}
