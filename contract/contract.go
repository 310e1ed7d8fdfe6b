// Package contract defines the domain model shared by the orchestration core:
// document groups, passages, documents, override records and the derived
// views and responses produced while answering a question.
package contract

import (
	"fmt"
	"strings"
	"time"
)

// Group is one of the six fixed document classification groups.
type Group string

const (
	GroupAgreement          Group = "A"
	GroupLetterOfAcceptance Group = "B"
	GroupConditions         Group = "C"
	GroupAddendum           Group = "D"
	GroupBillOfQuantities   Group = "I"
	GroupSchedule           Group = "N"
)

// DocumentsGroups are the groups served by the documents agent.
var DocumentsGroups = []Group{GroupAgreement, GroupLetterOfAcceptance, GroupAddendum, GroupBillOfQuantities, GroupSchedule}

// ConditionsGroups are the groups served by the conditions agent. Addendum
// passages that carry a clause number are added on top of these.
var ConditionsGroups = []Group{GroupConditions}

var groupLabels = map[Group]string{
	GroupAgreement:          "Agreement",
	GroupLetterOfAcceptance: "Letter of Acceptance",
	GroupConditions:         "Conditions of Contract",
	GroupAddendum:           "Addendum",
	GroupBillOfQuantities:   "Bill of Quantities",
	GroupSchedule:           "Schedule",
}

// baseRanks encodes A > B > D > C > I > N.
var baseRanks = map[Group]int{
	GroupAgreement:          6,
	GroupLetterOfAcceptance: 5,
	GroupAddendum:           4,
	GroupConditions:         3,
	GroupBillOfQuantities:   2,
	GroupSchedule:           1,
}

// Valid reports whether g is one of the six known groups.
func (g Group) Valid() bool {
	_, ok := baseRanks[g]
	return ok
}

// Label returns the human readable group name.
func (g Group) Label() string {
	if label, ok := groupLabels[g]; ok {
		return label
	}
	return string(g)
}

// BaseRank returns the fixed precedence rank of the group. Unknown groups rank 0.
func BaseRank(g Group) int {
	return baseRanks[g]
}

// ParseGroup accepts either the single letter code or the label.
func ParseGroup(value string) (Group, error) {
	trimmed := strings.TrimSpace(value)
	if g := Group(strings.ToUpper(trimmed)); g.Valid() {
		return g, nil
	}
	for g, label := range groupLabels {
		if strings.EqualFold(label, trimmed) {
			return g, nil
		}
	}
	return "", fmt.Errorf("parse group %q: %w", value, ErrInvalidInput)
}

// ContainsGroup reports whether groups includes g.
func ContainsGroup(groups []Group, g Group) bool {
	for _, candidate := range groups {
		if candidate == g {
			return true
		}
	}
	return false
}

// Passage is a retrievable unit of contract text.
type Passage struct {
	ID           string   `json:"id" yaml:"id"`
	DocumentID   string   `json:"documentId" yaml:"document_id"`
	Group        Group    `json:"group" yaml:"group"`
	ClauseNumber string   `json:"clauseNumber,omitempty" yaml:"clause_number,omitempty"`
	ClauseTitle  string   `json:"clauseTitle,omitempty" yaml:"clause_title,omitempty"`
	Text         string   `json:"text" yaml:"text"`
	Similarity   *float64 `json:"similarity,omitempty" yaml:"-"`
}

// HasClause reports whether the passage is tagged with a clause number.
func (p Passage) HasClause() bool {
	return strings.TrimSpace(p.ClauseNumber) != ""
}

// Document is an ingested source file.
type Document struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Group         Group      `json:"group" yaml:"group"`
	Sequence      int        `json:"sequence" yaml:"sequence"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty" yaml:"effective_date,omitempty"`
	Supersedes    string     `json:"supersedes,omitempty" yaml:"supersedes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" yaml:"created_at"`
}

// DisplayName returns the title, falling back to the group label and sequence.
func (d Document) DisplayName() string {
	if strings.TrimSpace(d.Title) != "" {
		return d.Title
	}
	if d.Sequence > 0 {
		return fmt.Sprintf("%s %d", d.Group.Label(), d.Sequence)
	}
	return d.Group.Label()
}

// Override states that one document supersedes another for some or all clauses.
type Override struct {
	ID           string   `json:"id" yaml:"id"`
	OverridingID string   `json:"overridingDocumentId" yaml:"overriding"`
	OverriddenID string   `json:"overriddenDocumentId" yaml:"overridden"`
	Scope        string   `json:"scope" yaml:"scope"`
	Clauses      []string `json:"affectedClauses,omitempty" yaml:"clauses,omitempty"`
}

// Covers reports whether the override applies to clause. An override without
// affected clauses applies to every clause of the overridden document.
func (o Override) Covers(clause string) bool {
	if len(o.Clauses) == 0 {
		return true
	}
	want := NormalizeClause(clause)
	for _, c := range o.Clauses {
		if NormalizeClause(c) == want {
			return true
		}
	}
	return false
}

// Snapshot is a full read-only view of one contract's stored material.
type Snapshot struct {
	ContractID string     `yaml:"contract_id"`
	Documents  []Document `yaml:"documents"`
	Passages   []Passage  `yaml:"passages"`
	Overrides  []Override `yaml:"overrides"`
}

// NormalizeClause canonicalises a clause number for comparison: surrounding
// whitespace and punctuation are dropped, inner whitespace is removed, and a
// leading "clause"/"sub-clause" word is stripped.
func NormalizeClause(clause string) string {
	c := strings.ToLower(strings.TrimSpace(clause))
	for _, prefix := range []string{"sub-clause", "subclause", "clause", "cl."} {
		if strings.HasPrefix(c, prefix) {
			c = strings.TrimSpace(strings.TrimPrefix(c, prefix))
			break
		}
	}
	c = strings.Join(strings.Fields(c), "")
	return strings.Trim(c, ".,;:()[]")
}
