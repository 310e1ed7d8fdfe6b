package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/contract-agent/contract"
)

const passageColumns = `
	p.id,
	p.document_id,
	d.doc_group,
	COALESCE(p.clause_number, ''),
	COALESCE(p.clause_title, ''),
	p.content`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) PassagesByDocumentGroups(ctx context.Context, contractID string, groups []contract.Group) ([]contract.Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(groups) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+passageColumns+`
		FROM contract_passages p
		JOIN contract_documents d ON d.id = p.document_id
		WHERE p.contract_id = $1 AND d.doc_group = ANY($2)
		ORDER BY d.doc_group, d.sequence, p.position
	`, contractID, groupStrings(groups))
	if err != nil {
		return nil, fmt.Errorf("query passages by group: %w", err)
	}
	return collectPassages(rows, false)
}

func (s *PostgresStore) PassagesByClauseNumber(ctx context.Context, contractID, clause string) ([]contract.Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+passageColumns+`
		FROM contract_passages p
		JOIN contract_documents d ON d.id = p.document_id
		WHERE p.contract_id = $1 AND p.clause_key = $2
		ORDER BY d.doc_group, d.sequence, p.position
	`, contractID, contract.NormalizeClause(clause))
	if err != nil {
		return nil, fmt.Errorf("query passages by clause: %w", err)
	}
	return collectPassages(rows, false)
}

func (s *PostgresStore) SearchPassagesByEmbedding(ctx context.Context, contractID string, vector []float32, limit int, threshold float64) ([]contract.Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+passageColumns+`,
			1 - (p.embedding <=> $2::vector) AS similarity
		FROM contract_passages p
		JOIN contract_documents d ON d.id = p.document_id
		WHERE p.contract_id = $1
		  AND p.embedding IS NOT NULL
		  AND 1 - (p.embedding <=> $2::vector) >= $3
		ORDER BY p.embedding <=> $2::vector
		LIMIT $4
	`, contractID, pgvector.NewVector(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar passages: %w", err)
	}
	return collectPassages(rows, true)
}

// SearchPassagesByText runs a Postgres full-text query restricted to groups.
func (s *PostgresStore) SearchPassagesByText(ctx context.Context, contractID, query string, groups []contract.Group, limit int) ([]contract.Passage, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+passageColumns+`
		FROM contract_passages p
		JOIN contract_documents d ON d.id = p.document_id
		WHERE p.contract_id = $1
		  AND d.doc_group = ANY($2)
		  AND to_tsvector('english', p.content) @@ plainto_tsquery('english', $3)
		ORDER BY ts_rank(to_tsvector('english', p.content), plainto_tsquery('english', $3)) DESC
		LIMIT $4
	`, contractID, groupStrings(groups), query, limit)
	if err != nil {
		return nil, fmt.Errorf("query passages by text: %w", err)
	}
	return collectPassages(rows, false)
}

func (s *PostgresStore) Documents(ctx context.Context, contractID string) ([]contract.Document, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(title, ''), doc_group, sequence, effective_date, COALESCE(supersedes, ''), created_at
		FROM contract_documents
		WHERE contract_id = $1
		ORDER BY doc_group, sequence
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []contract.Document
	for rows.Next() {
		var (
			doc       contract.Document
			group     string
			effective *time.Time
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &group, &doc.Sequence, &effective, &doc.Supersedes, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Group = contract.Group(group)
		doc.EffectiveDate = effective
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) Overrides(ctx context.Context, contractID string) ([]contract.Override, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, overriding_document_id, overridden_document_id, COALESCE(scope, ''), COALESCE(affected_clauses, '{}')
		FROM document_overrides
		WHERE contract_id = $1
		ORDER BY id
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []contract.Override
	for rows.Next() {
		var o contract.Override
		if err := rows.Scan(&o.ID, &o.OverridingID, &o.OverriddenID, &o.Scope, &o.Clauses); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return overrides, nil
}

func collectPassages(rows pgx.Rows, withSimilarity bool) ([]contract.Passage, error) {
	defer rows.Close()

	var passages []contract.Passage
	for rows.Next() {
		var (
			p     contract.Passage
			group string
		)
		dest := []any{&p.ID, &p.DocumentID, &group, &p.ClauseNumber, &p.ClauseTitle, &p.Text}
		var similarity float64
		if withSimilarity {
			dest = append(dest, &similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Group = contract.Group(group)
		if withSimilarity {
			score := similarity
			p.Similarity = &score
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return passages, nil
}

var (
	_ Store        = (*PostgresStore)(nil)
	_ TextSearcher = (*PostgresStore)(nil)
)
