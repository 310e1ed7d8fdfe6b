package config

import "time"

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "postgres://localhost:5432/contract-agent?sslmode=disable"
	}
	if cfg.Neo4jURI == "" {
		cfg.Neo4jURI = "neo4j://localhost:7687"
	}
	if cfg.Neo4jUser == "" {
		cfg.Neo4jUser = "neo4j"
	}
	if cfg.Neo4jPass == "" {
		cfg.Neo4jPass = "password"
	}
	if cfg.OverrideSource == "" {
		cfg.OverrideSource = OverrideSourcePostgres
	}
	if cfg.PostgresMaxConns == 0 {
		cfg.PostgresMaxConns = 10
	}
	if cfg.Neo4jMaxConns == 0 {
		cfg.Neo4jMaxConns = 50
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = "http://localhost:11434"
	}

	if cfg.SuggestLLM.RequestsPerSecond == 0 {
		cfg.SuggestLLM.RequestsPerSecond = 0.5
	}
	applyLLMDefaults(&cfg.DocumentsLLM)
	applyLLMDefaults(&cfg.ConditionsLLM)
	applyLLMDefaults(&cfg.SuggestLLM)

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = ProviderOpenAI
	}
	if cfg.Embeddings.Model == "" {
		if cfg.Embeddings.Provider == ProviderOllama {
			cfg.Embeddings.Model = "nomic-embed-text"
		} else {
			cfg.Embeddings.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embeddings.Dimension == 0 {
		if cfg.Embeddings.Provider == ProviderOllama {
			cfg.Embeddings.Dimension = 768
		} else {
			cfg.Embeddings.Dimension = 1536
		}
	}

	if cfg.Orchestrator.ConfidenceThreshold == 0 {
		cfg.Orchestrator.ConfidenceThreshold = 0.3
	}
	if cfg.Orchestrator.RetrievalLimit == 0 {
		cfg.Orchestrator.RetrievalLimit = 15
	}
	if cfg.Orchestrator.SimilarityThreshold == 0 {
		cfg.Orchestrator.SimilarityThreshold = 0.3
	}

	if cfg.Suggest.Cooldown == 0 {
		cfg.Suggest.Cooldown = 5 * time.Second
	}
	if cfg.Suggest.Count == 0 {
		cfg.Suggest.Count = 3
	}
}

func applyLLMDefaults(l *LLMConfig) {
	if l.Provider == "" {
		l.Provider = ProviderOpenAI
	}
	if l.Model == "" {
		if l.Provider == ProviderOllama {
			l.Model = "llama3.1:8b"
		} else {
			l.Model = "gpt-4o-mini"
		}
	}
	if l.Timeout == 0 {
		l.Timeout = 90 * time.Second
	}
	if l.RequestsPerSecond == 0 {
		l.RequestsPerSecond = 2
	}
}
