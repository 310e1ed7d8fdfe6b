package store

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/contract-agent/contract"
)

// Neo4jOverrideStore reads override records from the contract graph, where
// each record is an OVERRIDES relationship between two ContractDocument nodes.
type Neo4jOverrideStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jOverrideStore(driver neo4j.DriverWithContext) *Neo4jOverrideStore {
	return &Neo4jOverrideStore{driver: driver}
}

func (s *Neo4jOverrideStore) Overrides(ctx context.Context, contractID string) ([]contract.Override, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (x:ContractDocument {contract_id: $contract_id})-[o:OVERRIDES]->(y:ContractDocument {contract_id: $contract_id})
		RETURN o.id AS id,
		       x.id AS overriding,
		       y.id AS overridden,
		       coalesce(o.scope, '') AS scope,
		       coalesce(o.clauses, []) AS clauses
		ORDER BY id
	`, map[string]any{"contract_id": contractID})
	if err != nil {
		return nil, fmt.Errorf("run neo4j overrides query: %w", err)
	}

	var overrides []contract.Override
	for result.Next(ctx) {
		record := result.Record()
		id, _ := record.Get("id")
		overriding, _ := record.Get("overriding")
		overridden, _ := record.Get("overridden")
		scope, _ := record.Get("scope")
		clauses, _ := record.Get("clauses")

		o := contract.Override{
			ID:      asString(id),
			Scope:   asString(scope),
			Clauses: convertStringSlice(clauses),
		}
		o.OverridingID = asString(overriding)
		o.OverriddenID = asString(overridden)
		if o.OverridingID == "" || o.OverriddenID == "" {
			continue
		}
		overrides = append(overrides, o)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j overrides result error: %w", err)
	}

	return overrides, nil
}

var _ OverrideReader = (*Neo4jOverrideStore)(nil)

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func convertStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]string); ok {
			return v
		}
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}
