package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"minerva/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	AI            AIConfig
	Orchestrator  OrchestratorConfig
	Data          DataConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"minerva"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     int    `envconfig:"HTTP_PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"minerva"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"minerva"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AIConfig struct {
	OpenAIKey      string        `envconfig:"OPENAI_API_KEY"`
	AllowedModels  []string      `envconfig:"AI_ALLOWED_MODELS" default:"gpt-4o,gpt-4o-mini,o4-mini"`
	DefaultModel   string        `envconfig:"AI_DEFAULT_MODEL" default:"gpt-4o-mini"`
	PerCallTimeout time.Duration `envconfig:"AI_PER_CALL_TIMEOUT" default:"20s"`
	RequestsPerMin int           `envconfig:"AI_REQUESTS_PER_MINUTE" default:"60"`
	MaxTokens      int           `envconfig:"AI_MAX_TOKENS" default:"4096"`
	Temperature    float64       `envconfig:"AI_TEMPERATURE" default:"0.7"`
}

// ModelAllowed reports whether the model is in the configured allow-list.
func (c AIConfig) ModelAllowed(model string) bool {
	for _, m := range c.AllowedModels {
		if strings.TrimSpace(m) == model {
			return true
		}
	}
	return false
}

// OrchestratorConfig bounds run, persona, and debate behavior.
type OrchestratorConfig struct {
	MaxRecursionLimit int           `envconfig:"MAX_RECURSION_LIMIT" default:"20"` // per-persona step cap
	MaxToolSteps      int           `envconfig:"MAX_TOOL_STEPS" default:"8"`       // per-persona tool invocation cap
	RunWallClock      time.Duration `envconfig:"RUN_WALL_CLOCK" default:"15m"`
	PersonaBudget     time.Duration `envconfig:"PERSONA_BUDGET" default:"60s"`
	DebateRounds      int           `envconfig:"DEBATE_ROUNDS" default:"1"`
	RiskRounds        int           `envconfig:"RISK_ROUNDS" default:"1"`
	UseMockMode       bool          `envconfig:"USE_MOCK_MODE" default:"false"`
	EventRetention    time.Duration `envconfig:"EVENT_RETENTION" default:"1h"`
}

// GraphRecursionLimit returns the graph-level iteration cap sized for the
// configured debates: personas + 3 per debate round + 3 per risk round + 8.
func (c OrchestratorConfig) GraphRecursionLimit(personas int) int {
	return personas + 3*c.DebateRounds + 3*c.RiskRounds + 8
}

type DataConfig struct {
	FinnhubAPIKey   string        `envconfig:"FINNHUB_API_KEY"`
	RedditUserAgent string        `envconfig:"REDDIT_USER_AGENT" default:"minerva/1.0"`
	HTTPTimeout     time.Duration `envconfig:"DATA_HTTP_TIMEOUT" default:"30s"`
	CachePolicyPath string        `envconfig:"CACHE_POLICY_PATH"`
	LogsDir         string        `envconfig:"RUN_LOGS_DIR" default:"./run-logs"`
	UseMockData     bool          `envconfig:"USE_MOCK_DATA" default:"false"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if !cfg.AI.ModelAllowed(cfg.AI.DefaultModel) {
		return nil, errors.NewValidationError("AI_DEFAULT_MODEL", "default model must be in AI_ALLOWED_MODELS")
	}

	return &cfg, nil
}
