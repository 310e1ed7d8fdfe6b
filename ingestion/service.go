package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/database"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/store"
)

const embedBatchSize = 64

type Service struct {
	pool      *pgxpool.Pool
	embedder  embeddings.Embedder
	logger    *zap.Logger
	dimension int
}

func NewService(pool *pgxpool.Pool, embedder embeddings.Embedder, logger *zap.Logger, dimension int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		pool:      pool,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
	}
}

// Seed replaces everything stored for snap.ContractID with snap. Passages are
// embedded first so that a provider failure leaves the tables untouched.
func (s *Service) Seed(ctx context.Context, snap contract.Snapshot) (err error) {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if err := database.EnsureContractSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	vectors, err := EmbedPassages(ctx, s.embedder, snap.Passages)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = clearContract(ctx, tx, snap.ContractID); err != nil {
		return err
	}

	for _, d := range snap.Documents {
		if _, err = tx.Exec(ctx, `
			INSERT INTO contract_documents (id, contract_id, title, doc_group, sequence, effective_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, d.ID, snap.ContractID, d.Title, string(d.Group), d.Sequence, d.EffectiveDate, d.CreatedAt); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	// Supersedes links are set once every referenced row exists.
	for _, d := range snap.Documents {
		if d.Supersedes == "" {
			continue
		}
		if _, err = tx.Exec(ctx, "UPDATE contract_documents SET supersedes = $2 WHERE id = $1", d.ID, d.Supersedes); err != nil {
			return fmt.Errorf("link superseded document %s: %w", d.ID, err)
		}
	}

	positions := make(map[string]int)
	for _, p := range snap.Passages {
		pos := positions[p.DocumentID]
		positions[p.DocumentID] = pos + 1

		var clauseKey any
		if key := contract.NormalizeClause(p.ClauseNumber); key != "" {
			clauseKey = key
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO contract_passages (id, contract_id, document_id, position, clause_number, clause_key, clause_title, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9, NOW())
		`, p.ID, snap.ContractID, p.DocumentID, pos, p.ClauseNumber, clauseKey, p.ClauseTitle, p.Text, pgvector.NewVector(vectors[p.ID])); err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID, err)
		}
	}

	for _, o := range snap.Overrides {
		if _, err = tx.Exec(ctx, `
			INSERT INTO document_overrides (id, contract_id, overriding_document_id, overridden_document_id, scope, affected_clauses)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		`, o.ID, snap.ContractID, o.OverridingID, o.OverriddenID, o.Scope, o.Clauses); err != nil {
			return fmt.Errorf("insert override %s: %w", o.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("contract seeded",
		zap.String("contract_id", snap.ContractID),
		zap.Int("documents", len(snap.Documents)),
		zap.Int("passages", len(snap.Passages)),
		zap.Int("overrides", len(snap.Overrides)))
	return nil
}

// Clear removes every row stored for contractID.
func (s *Service) Clear(ctx context.Context, contractID string) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = clearContract(ctx, tx, contractID); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.logger.Info("contract rows cleared", zap.String("contract_id", contractID))
	return nil
}

func clearContract(ctx context.Context, tx pgx.Tx, contractID string) error {
	for _, stmt := range []string{
		"DELETE FROM document_overrides WHERE contract_id = $1",
		"DELETE FROM contract_passages WHERE contract_id = $1",
		"DELETE FROM contract_documents WHERE contract_id = $1",
	} {
		if _, err := tx.Exec(ctx, stmt, contractID); err != nil {
			return fmt.Errorf("clear existing contract rows: %w", err)
		}
	}
	return nil
}

// LoadMemory loads snap into an in-memory store, embedding its passages when
// an embedder is given.
func LoadMemory(ctx context.Context, mem *store.MemoryStore, embedder embeddings.Embedder, snap contract.Snapshot) error {
	var vectors map[string][]float32
	if embedder != nil {
		var err error
		if vectors, err = EmbedPassages(ctx, embedder, snap.Passages); err != nil {
			return err
		}
	}
	if err := mem.Load(snap, vectors); err != nil {
		return fmt.Errorf("load memory store: %w", err)
	}
	return nil
}

// EmbedPassages embeds passages in batches and returns vectors keyed by
// passage ID.
func EmbedPassages(ctx context.Context, embedder embeddings.Embedder, passages []contract.Passage) (map[string][]float32, error) {
	out := make(map[string][]float32, len(passages))
	for start := 0; start < len(passages); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = EmbeddingText(p)
		}

		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("generate embeddings: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: have %d passages, %d embeddings", len(batch), len(vectors))
		}
		for i, p := range batch {
			out[p.ID] = vectors[i]
		}
	}
	return out, nil
}

// EmbeddingText is the text embedded for a passage: its clause heading, if
// any, followed by the passage body.
func EmbeddingText(p contract.Passage) string {
	var parts []string
	if p.HasClause() {
		parts = append(parts, "Clause "+strings.TrimSpace(p.ClauseNumber))
	}
	if t := strings.TrimSpace(p.ClauseTitle); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, p.Text)
	return strings.Join(parts, "\n")
}
