package synth

import (
	"fmt"
	"strings"

	"github.com/fabfab/contract-agent/contract"
)

// CrossReferences matches clause numbers mentioned in the documents analysis
// against clauses cited by the conditions agent. Matching is substring
// containment in either direction after normalization, so coincidental
// overlaps are possible.
func CrossReferences(docs, conds *contract.AgentResponse) []contract.CrossReference {
	if docs == nil || conds == nil {
		return nil
	}
	cited := conds.ClauseNumbers()
	if len(cited) == 0 {
		return nil
	}

	var refs []contract.CrossReference
	seen := make(map[string]struct{})
	for _, mentioned := range contract.ExtractClauseNumbers(docs.Analysis) {
		m := contract.NormalizeClause(mentioned)
		for _, c := range cited {
			n := contract.NormalizeClause(c)
			if m == "" || n == "" {
				continue
			}
			if !strings.Contains(m, n) && !strings.Contains(n, m) {
				continue
			}
			key := m + "|" + n
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			refs = append(refs, contract.CrossReference{
				MentionedClause: mentioned,
				CitedClause:     c,
				Note:            note(mentioned, c),
			})
		}
	}
	return refs
}

func note(mentioned, cited string) string {
	if contract.NormalizeClause(mentioned) == contract.NormalizeClause(cited) {
		return fmt.Sprintf("The contract documents refer to clause %s, which the conditions of contract analysis addresses directly.", mentioned)
	}
	return fmt.Sprintf("The contract documents refer to clause %s, which relates to clause %s in the conditions of contract.", mentioned, cited)
}
