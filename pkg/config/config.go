package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for folio-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (API keys) must
// only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Index database (read-only at request time)
	BibliographicDBPath string `yaml:"bibliographic_db_path" env:"BIBLIOGRAPHIC_DB_PATH" env-default:"data/bibliographic.db"`

	// Session store database
	SessionsDBPath string `yaml:"sessions_db_path" env:"SESSIONS_DB_PATH" env-default:"data/sessions.db"`

	// Enrichment cache database
	EnrichmentDBPath string `yaml:"enrichment_db_path" env:"ENRICHMENT_DB_PATH" env-default:"data/enrichment.db"`

	// RunsDir is where per-query run artifacts (plan, SQL, candidate set) land.
	RunsDir string `yaml:"runs_dir" env:"RUNS_DIR" env-default:"runs"`

	// PlanCachePath is the append-only plan cache file.
	PlanCachePath string `yaml:"plan_cache_path" env:"PLAN_CACHE_PATH" env-default:"data/plan_cache.jsonl"`

	// Language model configuration
	LLM LLMConfig `yaml:"llm"`

	// Enrichment fetcher configuration
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Chat rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LLMConfig holds configuration for the external natural-language step.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	// Endpoint overrides the provider base URL (optional, for proxies).
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`

	Model string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`

	// Secrets - not in YAML.
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`

	// TimeoutSeconds bounds a single completion call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
}

// EnrichmentConfig holds settings for external authority lookups.
type EnrichmentConfig struct {
	// TTLDays is how long cached enrichment results stay fresh.
	TTLDays int `yaml:"ttl_days" env:"ENRICHMENT_TTL_DAYS" env-default:"30"`

	// WikidataBaseURL serves entity data and name search.
	WikidataBaseURL string `yaml:"wikidata_base_url" env:"WIKIDATA_BASE_URL" env-default:"https://www.wikidata.org"`

	// WikidataSPARQLEndpoint serves authority cross-reference queries; the
	// SPARQL service lives on its own host.
	WikidataSPARQLEndpoint string `yaml:"wikidata_sparql_endpoint" env:"WIKIDATA_SPARQL_ENDPOINT" env-default:"https://query.wikidata.org/sparql"`

	// MinRequestInterval is the minimum spacing between outbound requests
	// to the same host.
	MinRequestIntervalMS int `yaml:"min_request_interval_ms" env:"ENRICHMENT_MIN_REQUEST_INTERVAL_MS" env-default:"1000"`

	// ReaperIntervalMinutes is how often expired cache rows are removed.
	ReaperIntervalMinutes int `yaml:"reaper_interval_minutes" env:"ENRICHMENT_REAPER_INTERVAL_MINUTES" env-default:"60"`

	// WorkerEnabled starts the background pre-enrichment worker.
	WorkerEnabled bool `yaml:"worker_enabled" env:"ENRICHMENT_WORKER_ENABLED" env-default:"false"`
}

// RateLimitConfig holds the per-IP token bucket settings for /chat.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" env:"RATE_LIMIT_RPM" env-default:"10"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

// TTL returns the enrichment cache lifetime as a duration.
func (c *EnrichmentConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// MinRequestInterval returns the per-host request spacing as a duration.
func (c *EnrichmentConfig) MinRequestInterval() time.Duration {
	return time.Duration(c.MinRequestIntervalMS) * time.Millisecond
}

// Timeout returns the LLM call deadline as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey returns the credential for the configured provider.
func (c *LLMConfig) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is not an error; the environment alone
// is enough to run.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}
