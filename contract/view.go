package contract

import "math"

// Domain names a specialist knowledge domain.
type Domain string

const (
	DomainDocuments  Domain = "documents"
	DomainConditions Domain = "conditions"
)

// Label returns the specialty label used in synthesized answers.
func (d Domain) Label() string {
	switch d {
	case DomainDocuments:
		return "Contract Documents"
	case DomainConditions:
		return "Conditions of Contract"
	default:
		return string(d)
	}
}

// ClauseEntry is one contributing document in an EffectiveClauseView.
type ClauseEntry struct {
	Document     Document `json:"document"`
	Passage      Passage  `json:"passage"`
	BaseRank     int      `json:"baseRank"`
	Priority     float64  `json:"priority"`
	Effective    bool     `json:"effective"`
	Supersedes   []string `json:"supersedes,omitempty"`
	SupersededBy []string `json:"supersededBy,omitempty"`
}

// EffectiveClauseView is the ranked, derived view of every document that
// addresses a clause. It is recomputed on every request and never stored.
type EffectiveClauseView struct {
	ContractID   string              `json:"contractId"`
	ClauseNumber string              `json:"clauseNumber"`
	Entries      []ClauseEntry       `json:"entries"`
	Conflict     *PrecedenceConflict `json:"conflict,omitempty"`
}

// EffectiveEntries returns every entry flagged effective. More than one entry
// is only returned when Conflict is set.
func (v *EffectiveClauseView) EffectiveEntries() []ClauseEntry {
	if v == nil {
		return nil
	}
	var out []ClauseEntry
	for _, e := range v.Entries {
		if e.Effective {
			out = append(out, e)
		}
	}
	return out
}

// Effective returns the single effective entry, or false when the view is
// empty or contested.
func (v *EffectiveClauseView) Effective() (ClauseEntry, bool) {
	entries := v.EffectiveEntries()
	if len(entries) != 1 {
		return ClauseEntry{}, false
	}
	return entries[0], true
}

// Entry returns the entry for documentID.
func (v *EffectiveClauseView) Entry(documentID string) (ClauseEntry, bool) {
	if v == nil {
		return ClauseEntry{}, false
	}
	for _, e := range v.Entries {
		if e.Document.ID == documentID {
			return e, true
		}
	}
	return ClauseEntry{}, false
}

// QueryClassification scores a query against both knowledge domains.
type QueryClassification struct {
	RequiresDocumentsAgent  bool     `json:"requiresDocumentsAgent"`
	RequiresConditionsAgent bool     `json:"requiresConditionsAgent"`
	DocumentRelevance       float64  `json:"documentRelevance"`
	ConditionsRelevance     float64  `json:"conditionsRelevance"`
	DetectedTopics          []string `json:"detectedTopics"`
}

// Relevance returns the score for domain d.
func (c QueryClassification) Relevance(d Domain) float64 {
	if d == DomainDocuments {
		return c.DocumentRelevance
	}
	return c.ConditionsRelevance
}

// Requires reports whether domain d was flagged.
func (c QueryClassification) Requires(d Domain) bool {
	if d == DomainDocuments {
		return c.RequiresDocumentsAgent
	}
	return c.RequiresConditionsAgent
}

// Citation points back to the passage an agent grounded its answer in.
type Citation struct {
	PassageID     string `json:"passageId"`
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle,omitempty"`
	Group         Group  `json:"group"`
	ClauseNumber  string `json:"clauseNumber,omitempty"`
	Superseded    bool   `json:"superseded,omitempty"`
	SupersededBy  string `json:"supersededBy,omitempty"`
	Contested     bool   `json:"contested,omitempty"`
}

// AgentResponse is produced once per agent invocation.
type AgentResponse struct {
	Agent      string     `json:"agent"`
	Domain     Domain     `json:"domain"`
	Analysis   string     `json:"analysis"`
	Confidence float64    `json:"confidence"`
	Sources    []Citation `json:"sources"`
	Conflicts  []string   `json:"conflicts,omitempty"`
	Err        error      `json:"-"`
}

// ErrorMessage returns the error text or an empty string.
func (r *AgentResponse) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ClauseNumbers returns the distinct clause numbers cited, in citation order.
func (r *AgentResponse) ClauseNumbers() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Sources))
	var out []string
	for _, s := range r.Sources {
		if s.ClauseNumber == "" {
			continue
		}
		if _, ok := seen[s.ClauseNumber]; ok {
			continue
		}
		seen[s.ClauseNumber] = struct{}{}
		out = append(out, s.ClauseNumber)
	}
	return out
}

// CrossReference links a clause mentioned by the documents agent to a clause
// cited by the conditions agent.
type CrossReference struct {
	MentionedClause string `json:"mentionedClause"`
	CitedClause     string `json:"citedClause"`
	Note            string `json:"note"`
}

// SynthesizedResponse is the terminal artifact returned to the caller.
type SynthesizedResponse struct {
	RequestID       string              `json:"requestId,omitempty"`
	FinalAnswer     string              `json:"finalAnswer"`
	Documents       *AgentResponse      `json:"documentsResponse"`
	Conditions      *AgentResponse      `json:"conditionsResponse"`
	CrossReferences []CrossReference    `json:"crossReferences"`
	AgentsUsed      []Domain            `json:"agentsUsed"`
	Rationale       string              `json:"synthesisRationale"`
	Conflicts       []string            `json:"conflicts,omitempty"`
	Classification  QueryClassification `json:"classification"`
}

// Availability reports which agents hold the credentials they need.
type Availability struct {
	DocumentsAgentReady  bool `json:"documentsAgentReady"`
	ConditionsAgentReady bool `json:"conditionsAgentReady"`
}

// ClampConfidence keeps c inside [0,1]; NaN maps to 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
