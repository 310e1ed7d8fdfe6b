// Package config loads runtime settings from the environment, optionally
// overlaid on a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"

	OverrideSourcePostgres = "postgres"
	OverrideSourceNeo4j    = "neo4j"
)

type Config struct {
	Debug      bool   `yaml:"debug"`
	ListenAddr string `yaml:"listen_addr"`

	PostgresDSN    string `yaml:"postgres_dsn"`
	Neo4jURI       string `yaml:"neo4j_uri"`
	Neo4jUser      string `yaml:"neo4j_username"`
	Neo4jPass      string `yaml:"neo4j_password"`
	OverrideSource string `yaml:"override_source"`

	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	Neo4jMaxConns    int           `yaml:"neo4j_max_conns"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OllamaHost    string `yaml:"ollama_host"`

	DocumentsLLM  LLMConfig       `yaml:"documents_llm"`
	ConditionsLLM LLMConfig       `yaml:"conditions_llm"`
	SuggestLLM    LLMConfig       `yaml:"suggest_llm"`
	Embeddings    EmbeddingConfig `yaml:"embeddings"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Suggest      SuggestConfig      `yaml:"suggest"`
}

// LLMConfig selects the model behind one agent. APIKey overrides the shared
// OpenAI key so each agent can carry its own credential.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type OrchestratorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	AlwaysBoth          bool    `yaml:"always_both"`
	RetrievalLimit      int     `yaml:"retrieval_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type SuggestConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	Count    int           `yaml:"count"`
}

// Load reads the environment on top of defaults. When CONTRACT_AGENT_CONFIG
// names a YAML file it is applied first, so environment values win.
func Load() Config {
	cfg, err := LoadFile(os.Getenv("CONTRACT_AGENT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, continuing with environment only\n", err)
		cfg = Config{}
		ApplyDefaults(&cfg)
		applyEnv(&cfg)
	}
	return cfg
}

// LoadFile parses path (if non-empty), then applies the environment and defaults.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Debug = getBool("DEBUG", cfg.Debug)
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USERNAME", cfg.Neo4jUser)
	cfg.Neo4jPass = getEnv("NEO4J_PASSWORD", cfg.Neo4jPass)
	cfg.OverrideSource = getEnv("OVERRIDE_SOURCE", cfg.OverrideSource)
	cfg.PostgresMaxConns = getInt("POSTGRES_MAX_CONNS", cfg.PostgresMaxConns)
	cfg.Neo4jMaxConns = getInt("NEO4J_MAX_CONNS", cfg.Neo4jMaxConns)
	cfg.ConnectTimeout = getDuration("DB_CONNECT_TIMEOUT", cfg.ConnectTimeout)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)

	cfg.DocumentsLLM.Provider = getEnv("DOCUMENTS_LLM_PROVIDER", cfg.DocumentsLLM.Provider)
	cfg.DocumentsLLM.Model = getEnv("DOCUMENTS_LLM_MODEL", cfg.DocumentsLLM.Model)
	cfg.DocumentsLLM.APIKey = getEnv("DOCUMENTS_API_KEY", cfg.DocumentsLLM.APIKey)
	cfg.ConditionsLLM.Provider = getEnv("CONDITIONS_LLM_PROVIDER", cfg.ConditionsLLM.Provider)
	cfg.ConditionsLLM.Model = getEnv("CONDITIONS_LLM_MODEL", cfg.ConditionsLLM.Model)
	cfg.ConditionsLLM.APIKey = getEnv("CONDITIONS_API_KEY", cfg.ConditionsLLM.APIKey)
	cfg.SuggestLLM.Provider = getEnv("SUGGEST_LLM_PROVIDER", cfg.SuggestLLM.Provider)
	cfg.SuggestLLM.Model = getEnv("SUGGEST_LLM_MODEL", cfg.SuggestLLM.Model)

	cfg.Embeddings.Provider = getEnv("EMBEDDINGS_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("EMBEDDINGS_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getInt("EMBEDDINGS_DIMENSION", cfg.Embeddings.Dimension)

	cfg.Orchestrator.ConfidenceThreshold = getFloat("CONFIDENCE_THRESHOLD", cfg.Orchestrator.ConfidenceThreshold)
	cfg.Orchestrator.AlwaysBoth = getBool("ALWAYS_BOTH_AGENTS", cfg.Orchestrator.AlwaysBoth)
	cfg.Orchestrator.RetrievalLimit = getInt("RETRIEVAL_LIMIT", cfg.Orchestrator.RetrievalLimit)
	cfg.Orchestrator.SimilarityThreshold = getFloat("SIMILARITY_THRESHOLD", cfg.Orchestrator.SimilarityThreshold)
	cfg.Suggest.Cooldown = getDuration("SUGGEST_COOLDOWN", cfg.Suggest.Cooldown)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
