// Package knowledge mirrors a contract's documents and override records into
// the Neo4j graph read by store.Neo4jOverrideStore.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/contract-agent/contract"
)

// SyncContract replaces the graph for contractID: one ContractDocument node
// per document, an OVERRIDES relationship per override and a SUPERSEDES
// relationship per same-group supersession link.
func SyncContract(ctx context.Context, driver neo4j.DriverWithContext, contractID string, docs []contract.Document, overrides []contract.Override) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if contractID == "" {
		return fmt.Errorf("contract id is required: %w", contract.ErrInvalidInput)
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (d:ContractDocument {contract_id: $contract_id})
			WHERE NOT d.id IN $ids
			DETACH DELETE d
		`, map[string]any{"contract_id": contractID, "ids": documentIDs(docs)}); err != nil {
			return nil, fmt.Errorf("remove stale documents: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (:ContractDocument {contract_id: $contract_id})-[r:OVERRIDES|SUPERSEDES]->(:ContractDocument)
			DELETE r
		`, map[string]any{"contract_id": contractID}); err != nil {
			return nil, fmt.Errorf("clear existing relationships: %w", err)
		}

		for _, d := range docs {
			if _, err := tx.Run(ctx, `
				MERGE (d:ContractDocument {id: $id})
				SET d.contract_id = $contract_id,
				    d.title = $title,
				    d.doc_group = $group,
				    d.sequence = $sequence,
				    d.updated_at = datetime()
			`, map[string]any{
				"id":          d.ID,
				"contract_id": contractID,
				"title":       d.Title,
				"group":       string(d.Group),
				"sequence":    d.Sequence,
			}); err != nil {
				return nil, fmt.Errorf("upsert document node %s: %w", d.ID, err)
			}
		}

		for _, d := range docs {
			if d.Supersedes == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (x:ContractDocument {id: $id}), (y:ContractDocument {id: $supersedes})
				MERGE (x)-[:SUPERSEDES]->(y)
			`, map[string]any{"id": d.ID, "supersedes": d.Supersedes}); err != nil {
				return nil, fmt.Errorf("link superseded document %s: %w", d.ID, err)
			}
		}

		for _, o := range overrides {
			clauses := o.Clauses
			if clauses == nil {
				clauses = []string{}
			}
			if _, err := tx.Run(ctx, `
				MATCH (x:ContractDocument {id: $overriding}), (y:ContractDocument {id: $overridden})
				CREATE (x)-[:OVERRIDES {id: $id, scope: $scope, clauses: $clauses}]->(y)
			`, map[string]any{
				"id":         o.ID,
				"overriding": o.OverridingID,
				"overridden": o.OverriddenID,
				"scope":      o.Scope,
				"clauses":    clauses,
			}); err != nil {
				return nil, fmt.Errorf("create override %s: %w", o.ID, err)
			}
		}

		return nil, nil
	})
	return err
}

func documentIDs(docs []contract.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// ClearContract deletes every node and relationship of contractID.
func ClearContract(ctx context.Context, driver neo4j.DriverWithContext, contractID string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:ContractDocument {contract_id: $contract_id})
		DETACH DELETE d
	`, map[string]any{"contract_id": contractID})
	if err != nil {
		return fmt.Errorf("delete contract documents: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("delete contract documents: %w", err)
	}
	return nil
}
