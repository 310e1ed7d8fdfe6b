// Package synth merges the specialist agents' outputs into one cited answer.
package synth

import (
	"fmt"
	"strings"

	"github.com/fabfab/contract-agent/contract"
)

const (
	// DefaultThreshold is the confidence an agent must exceed to contribute.
	DefaultThreshold = 0.3

	// precedenceNoteConfidence is the confidence both agents must exceed
	// before the global precedence reminder is appended.
	precedenceNoteConfidence = 0.5

	precedenceNote = "Note on precedence: where the contract documents and the conditions of contract disagree, the order of precedence is Particular Conditions > General Conditions > Agreement > Schedules, unless an addendum expressly provides otherwise."

	noDataMessage = "I could not find any contract passages relevant to this question. Please load the contract documents and the conditions of contract clauses for this contract, then ask again."
)

type Synthesizer struct {
	Threshold float64
}

func New(threshold float64) *Synthesizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Synthesizer{Threshold: threshold}
}

// Qualifies reports whether resp may contribute to the final answer.
func (s *Synthesizer) Qualifies(resp *contract.AgentResponse) bool {
	return resp != nil && resp.Err == nil && resp.Confidence > s.threshold()
}

func (s *Synthesizer) threshold() float64 {
	if s == nil || s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// Synthesize builds the final response. docs or conds may be nil when the
// agent was not invoked.
func (s *Synthesizer) Synthesize(classification contract.QueryClassification, docs, conds *contract.AgentResponse) contract.SynthesizedResponse {
	out := contract.SynthesizedResponse{
		Documents:      docs,
		Conditions:     conds,
		Classification: classification,
	}

	var used []*contract.AgentResponse
	for _, resp := range orderByRelevance(classification, docs, conds) {
		if s.Qualifies(resp) {
			used = append(used, resp)
			out.AgentsUsed = append(out.AgentsUsed, resp.Domain)
		}
	}

	if conds != nil && conds.Err == nil {
		out.Conflicts = append(out.Conflicts, conds.Conflicts...)
	}

	switch len(used) {
	case 0:
		out.FinalAnswer = noAnswer(docs, conds)
		out.Rationale = "No specialist agent produced a usable answer."
		return out
	case 1:
		only := used[0]
		other := conds
		otherDomain := contract.DomainConditions
		if only.Domain == contract.DomainConditions {
			other, otherDomain = docs, contract.DomainDocuments
		}
		out.FinalAnswer = only.Analysis + "\n\n" + s.scopeNote(otherDomain, other)
		out.Rationale = fmt.Sprintf("Only the %s specialist contributed (confidence %.2f).", only.Domain.Label(), only.Confidence)
	default:
		var blocks []string
		for _, resp := range used {
			blocks = append(blocks, fmt.Sprintf("## %s\n\n%s", resp.Domain.Label(), strings.TrimSpace(resp.Analysis)))
		}
		out.CrossReferences = CrossReferences(docs, conds)
		if len(out.CrossReferences) > 0 {
			var sb strings.Builder
			sb.WriteString("## Cross-references\n\n")
			for _, ref := range out.CrossReferences {
				sb.WriteString("- " + ref.Note + "\n")
			}
			blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
		}
		if docs.Confidence > precedenceNoteConfidence && conds.Confidence > precedenceNoteConfidence {
			blocks = append(blocks, precedenceNote)
		}
		out.FinalAnswer = strings.Join(blocks, "\n\n")
		out.Rationale = fmt.Sprintf("Merged both specialists, %s first (relevance %.2f vs %.2f).",
			used[0].Domain.Label(), classification.Relevance(used[0].Domain), classification.Relevance(used[1].Domain))
	}

	if len(out.Conflicts) > 0 && containsDomain(out.AgentsUsed, contract.DomainConditions) {
		var sb strings.Builder
		sb.WriteString("**Precedence conflicts:**\n")
		for _, c := range out.Conflicts {
			sb.WriteString("- " + c + "\n")
		}
		out.FinalAnswer += "\n\n" + strings.TrimRight(sb.String(), "\n")
	}
	return out
}

// orderByRelevance puts the domain with the higher classification relevance
// first. Ties go to conditions.
func orderByRelevance(c contract.QueryClassification, docs, conds *contract.AgentResponse) []*contract.AgentResponse {
	if c.DocumentRelevance > c.ConditionsRelevance {
		return []*contract.AgentResponse{docs, conds}
	}
	return []*contract.AgentResponse{conds, docs}
}

func (s *Synthesizer) scopeNote(domain contract.Domain, resp *contract.AgentResponse) string {
	switch {
	case resp == nil:
		return fmt.Sprintf("_Note: the %s specialist was not consulted because the question did not appear to concern it._", domain.Label())
	case resp.Err != nil:
		return fmt.Sprintf("_Note: the %s specialist was unavailable (%s), so this answer covers only part of the contract._", domain.Label(), resp.Err)
	default:
		return fmt.Sprintf("_Note: the %s specialist found nothing relevant (confidence %.2f), so this answer covers only part of the contract._", domain.Label(), resp.Confidence)
	}
}

func noAnswer(responses ...*contract.AgentResponse) string {
	var causes []string
	for _, resp := range responses {
		if resp != nil && resp.Err != nil {
			causes = append(causes, fmt.Sprintf("- %s: %s", resp.Domain.Label(), resp.Err))
		}
	}
	if len(causes) == 0 {
		return noDataMessage
	}
	return "No specialist could answer this question:\n" + strings.Join(causes, "\n")
}

func containsDomain(domains []contract.Domain, d contract.Domain) bool {
	for _, x := range domains {
		if x == d {
			return true
		}
	}
	return false
}
