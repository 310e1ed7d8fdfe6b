package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRankOrder(t *testing.T) {
	order := []Group{GroupAgreement, GroupLetterOfAcceptance, GroupAddendum, GroupConditions, GroupBillOfQuantities, GroupSchedule}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, BaseRank(order[i-1]), BaseRank(order[i]), "%s should outrank %s", order[i-1], order[i])
	}
	assert.Zero(t, BaseRank(Group("Z")))
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup(" d ")
	require.NoError(t, err)
	assert.Equal(t, GroupAddendum, g)

	g, err = ParseGroup("bill of quantities")
	require.NoError(t, err)
	assert.Equal(t, GroupBillOfQuantities, g)

	_, err = ParseGroup("X")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeClause(t *testing.T) {
	cases := map[string]string{
		"14.1":           "14.1",
		" Clause 14.1 ":  "14.1",
		"Sub-Clause 8.1": "8.1",
		"cl. 20":         "20",
		"14. 1":          "14.1",
		"(4.2)":          "4.2",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeClause(in), "input %q", in)
	}
}

func TestOverrideCovers(t *testing.T) {
	scoped := Override{Clauses: []string{"14.1", "Clause 8.1"}}
	assert.True(t, scoped.Covers("8.1"))
	assert.True(t, scoped.Covers("Sub-Clause 14.1"))
	assert.False(t, scoped.Covers("14.2"))

	unscoped := Override{}
	assert.True(t, unscoped.Covers("anything"))
}

func TestDocumentDisplayName(t *testing.T) {
	assert.Equal(t, "Addendum 2", Document{Group: GroupAddendum, Sequence: 2}.DisplayName())
	assert.Equal(t, "Particular Conditions", Document{Title: "Particular Conditions", Group: GroupConditions}.DisplayName())
	assert.Equal(t, "Agreement", Document{Group: GroupAgreement}.DisplayName())
}

func TestExtractClauseNumbers(t *testing.T) {
	text := "Per Sub-Clause 14.1 and clause 20, see also 8.1.2 and 14.1 again. The fee is $1.5 million, 2.5% retention, rate 0.75."
	assert.Equal(t, []string{"14.1", "20", "8.1.2"}, ExtractClauseNumbers(text))
	assert.Empty(t, ExtractClauseNumbers("No clause references here."))
}

func TestExtractClauseNumbersSkipsCurrencyAmounts(t *testing.T) {
	assert.Empty(t, ExtractClauseNumbers("pay €12.50 now"))
	assert.Empty(t, ExtractClauseNumbers("a fee of £3.25 applies"))
	assert.Equal(t, []string{"12.5"}, ExtractClauseNumbers("see 12.5 for the €40.10 charge"))
}

func TestPrecedenceConflictError(t *testing.T) {
	c := &PrecedenceConflict{ClauseNumber: "8.1", Documents: []string{"Addendum 2", "the Particular Conditions"}}
	assert.Equal(t, "clause 8.1 is contested between Addendum 2 and the Particular Conditions", c.Error())
	assert.True(t, errors.Is(c, ErrPrecedenceConflict))

	nf := &NotFoundError{ContractID: "c1", ClauseNumber: "9.9"}
	assert.True(t, errors.Is(nf, ErrNotFound))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-1))
	assert.Equal(t, 1.0, ClampConfidence(2))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestAgentResponseClauseNumbers(t *testing.T) {
	resp := &AgentResponse{Sources: []Citation{
		{ClauseNumber: "14.1"}, {ClauseNumber: ""}, {ClauseNumber: "8.1"}, {ClauseNumber: "14.1"},
	}}
	assert.Equal(t, []string{"14.1", "8.1"}, resp.ClauseNumbers())
	assert.Nil(t, (*AgentResponse)(nil).ClauseNumbers())
}
