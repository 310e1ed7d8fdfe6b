package synth

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/contract-agent/contract"
)

func docsResp(confidence float64, analysis string) *contract.AgentResponse {
	return &contract.AgentResponse{Agent: "documents", Domain: contract.DomainDocuments, Confidence: confidence, Analysis: analysis}
}

func condsResp(confidence float64, analysis string, clauses ...string) *contract.AgentResponse {
	resp := &contract.AgentResponse{Agent: "conditions", Domain: contract.DomainConditions, Confidence: confidence, Analysis: analysis}
	for i, c := range clauses {
		resp.Sources = append(resp.Sources, contract.Citation{PassageID: fmt.Sprintf("p%d", i), ClauseNumber: c})
	}
	return resp
}

var balanced = contract.QueryClassification{
	RequiresDocumentsAgent:  true,
	RequiresConditionsAgent: true,
	DocumentRelevance:       0.5,
	ConditionsRelevance:     0.5,
}

func TestSynthesizeGatesOnConfidence(t *testing.T) {
	s := New(0.3)
	out := s.Synthesize(balanced, docsResp(0.25, "low"), condsResp(0.6, "Conditions answer."))

	assert.Equal(t, []contract.Domain{contract.DomainConditions}, out.AgentsUsed)
	assert.NotContains(t, out.FinalAnswer, "low")
	assert.True(t, strings.HasPrefix(out.FinalAnswer, "Conditions answer."))
	assert.Contains(t, out.FinalAnswer, "Contract Documents specialist found nothing relevant")
}

func TestSynthesizeThresholdIsExclusive(t *testing.T) {
	s := New(0.3)
	out := s.Synthesize(balanced, docsResp(0.3, "borderline"), nil)
	assert.Empty(t, out.AgentsUsed)
}

func TestSynthesizeIgnoresErroredResponses(t *testing.T) {
	s := New(0.3)
	failed := docsResp(0.9, "stale")
	failed.Err = errors.New("upstream provider error: boom")

	out := s.Synthesize(balanced, failed, condsResp(0.7, "Conditions answer."))
	assert.Equal(t, []contract.Domain{contract.DomainConditions}, out.AgentsUsed)
	assert.Contains(t, out.FinalAnswer, "Contract Documents specialist was unavailable (upstream provider error: boom)")
}

func TestSynthesizeZeroAgentsEnumeratesErrors(t *testing.T) {
	s := New(0.3)
	d := docsResp(0, "")
	d.Err = errors.New("documents: llm client not configured: agent unavailable")
	c := condsResp(0, "")
	c.Err = errors.New("conditions: upstream timeout")

	out := s.Synthesize(balanced, d, c)
	assert.Empty(t, out.AgentsUsed)
	assert.Contains(t, out.FinalAnswer, "Contract Documents: documents: llm client not configured")
	assert.Contains(t, out.FinalAnswer, "Conditions of Contract: conditions: upstream timeout")
}

func TestSynthesizeZeroAgentsWithoutErrors(t *testing.T) {
	s := New(0.3)
	out := s.Synthesize(balanced, docsResp(0.2, "nothing"), condsResp(0.2, "nothing"))
	assert.Empty(t, out.AgentsUsed)
	assert.Equal(t, noDataMessage, out.FinalAnswer)
}

func TestSynthesizeOneAgentKeepsAnalysisVerbatim(t *testing.T) {
	s := New(0.3)
	analysis := "Payment is due within **28 days** [Source 1]."
	c := balanced
	c.RequiresConditionsAgent = false

	out := s.Synthesize(c, docsResp(0.52, analysis), nil)
	assert.Equal(t, []contract.Domain{contract.DomainDocuments}, out.AgentsUsed)
	assert.True(t, strings.HasPrefix(out.FinalAnswer, analysis+"\n\n"))
	assert.Contains(t, out.FinalAnswer, "Conditions of Contract specialist was not consulted")
}

func TestSynthesizeOrdersByRelevance(t *testing.T) {
	s := New(0.3)

	out := s.Synthesize(balanced, docsResp(0.6, "DOCS"), condsResp(0.6, "CONDS"))
	assert.Equal(t, []contract.Domain{contract.DomainConditions, contract.DomainDocuments}, out.AgentsUsed, "ties put conditions first")
	assert.Less(t, strings.Index(out.FinalAnswer, "CONDS"), strings.Index(out.FinalAnswer, "DOCS"))

	docsFirst := balanced
	docsFirst.DocumentRelevance = 0.72
	out = s.Synthesize(docsFirst, docsResp(0.6, "DOCS"), condsResp(0.6, "CONDS"))
	assert.Equal(t, []contract.Domain{contract.DomainDocuments, contract.DomainConditions}, out.AgentsUsed)
	assert.Less(t, strings.Index(out.FinalAnswer, "DOCS"), strings.Index(out.FinalAnswer, "CONDS"))
	assert.Contains(t, out.FinalAnswer, "## Contract Documents\n\nDOCS")
	assert.Contains(t, out.FinalAnswer, "## Conditions of Contract\n\nCONDS")
}

func TestSynthesizePrecedenceNote(t *testing.T) {
	s := New(0.3)

	out := s.Synthesize(balanced, docsResp(0.6, "DOCS"), condsResp(0.6, "CONDS"))
	assert.Contains(t, out.FinalAnswer, "Particular Conditions > General Conditions > Agreement > Schedules")

	out = s.Synthesize(balanced, docsResp(0.45, "DOCS"), condsResp(0.9, "CONDS"))
	assert.Len(t, out.AgentsUsed, 2)
	assert.NotContains(t, out.FinalAnswer, "Particular Conditions > General Conditions")
}

func TestSynthesizeCrossReferences(t *testing.T) {
	s := New(0.3)
	docs := docsResp(0.6, "The Agreement refers to Sub-Clause 14.1 for the price and to clause 20 for claims.")
	conds := condsResp(0.6, "CONDS", "14.1", "8.1")

	out := s.Synthesize(balanced, docs, conds)
	require.Len(t, out.CrossReferences, 1)
	assert.Equal(t, "14.1", out.CrossReferences[0].MentionedClause)
	assert.Equal(t, "14.1", out.CrossReferences[0].CitedClause)
	assert.Contains(t, out.FinalAnswer, "## Cross-references")
}

func TestCrossReferencesUseContainment(t *testing.T) {
	docs := docsResp(0.6, "See 14.1.2 for the details.")
	conds := condsResp(0.6, "", "Clause 14.1")

	refs := CrossReferences(docs, conds)
	require.Len(t, refs, 1)
	assert.Equal(t, "14.1.2", refs[0].MentionedClause)
	assert.Equal(t, "Clause 14.1", refs[0].CitedClause)
	assert.Nil(t, CrossReferences(nil, conds))
}

func TestSynthesizeSurfacesConflicts(t *testing.T) {
	s := New(0.3)
	conds := condsResp(0.6, "CONDS", "8.1")
	conds.Conflicts = []string{"Clause 8.1 is contested between Addendum 2 and Particular Conditions."}

	out := s.Synthesize(balanced, nil, conds)
	assert.Equal(t, conds.Conflicts, out.Conflicts)
	assert.Contains(t, out.FinalAnswer, "Clause 8.1 is contested between Addendum 2 and Particular Conditions.")
}

func TestNewDefaultsThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).Threshold)
}
