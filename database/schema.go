package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureContractSchema creates the passage store tables when they are missing.
// The orchestration core only reads them; the seed command writes them.
func EnsureContractSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS contract_documents (
			id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			title TEXT,
			doc_group CHAR(1) NOT NULL CHECK (doc_group IN ('A', 'B', 'C', 'D', 'I', 'N')),
			sequence INT NOT NULL DEFAULT 0,
			effective_date DATE,
			supersedes TEXT REFERENCES contract_documents(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contract_passages (
			id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			document_id TEXT NOT NULL REFERENCES contract_documents(id) ON DELETE CASCADE,
			position INT NOT NULL DEFAULT 0,
			clause_number TEXT,
			clause_key TEXT,
			clause_title TEXT,
			content TEXT NOT NULL,
			embedding VECTOR(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`CREATE TABLE IF NOT EXISTS document_overrides (
			id TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			overriding_document_id TEXT NOT NULL REFERENCES contract_documents(id) ON DELETE CASCADE,
			overridden_document_id TEXT NOT NULL REFERENCES contract_documents(id) ON DELETE CASCADE,
			scope TEXT,
			affected_clauses TEXT[]
		)`,
		"CREATE INDEX IF NOT EXISTS idx_contract_documents_contract ON contract_documents(contract_id, doc_group)",
		"CREATE INDEX IF NOT EXISTS idx_contract_passages_clause ON contract_passages(contract_id, clause_key)",
		"CREATE INDEX IF NOT EXISTS idx_contract_passages_document ON contract_passages(document_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_contract_passages_embedding ON contract_passages USING ivfflat (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_contract_passages_fts ON contract_passages USING gin (to_tsvector('english', content))",
		"CREATE INDEX IF NOT EXISTS idx_document_overrides_contract ON document_overrides(contract_id)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
