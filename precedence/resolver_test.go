package precedence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/store"
)

const contractID = "contract-1"

func doc(id string, g contract.Group, seq int) contract.Document {
	return contract.Document{
		ID:        id,
		Title:     id,
		Group:     g,
		Sequence:  seq,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func passage(id string, d contract.Document, clause string) contract.Passage {
	return contract.Passage{
		ID:           id,
		DocumentID:   d.ID,
		Group:        d.Group,
		ClauseNumber: clause,
		Text:         "text of " + id,
	}
}

func newResolver(t *testing.T, snap contract.Snapshot) *Resolver {
	t.Helper()
	mem, err := store.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })
	snap.ContractID = contractID
	require.NoError(t, mem.Load(snap, nil))
	return NewResolver(mem)
}

func effectiveIDs(view *contract.EffectiveClauseView) []string {
	var ids []string
	for _, e := range view.EffectiveEntries() {
		ids = append(ids, e.Document.ID)
	}
	return ids
}

func TestResolveWithoutOverridesPicksHighestBaseRank(t *testing.T) {
	agreement := doc("agreement", contract.GroupAgreement, 0)
	gc := doc("gc", contract.GroupConditions, 0)
	schedule := doc("schedule", contract.GroupSchedule, 0)

	r := newResolver(t, contract.Snapshot{
		Documents: []contract.Document{schedule, gc, agreement},
		Passages: []contract.Passage{
			passage("p-n", schedule, "3.2"),
			passage("p-c", gc, "3.2"),
			passage("p-a", agreement, "3.2"),
		},
	})

	view, err := r.ResolveEffectiveClause(context.Background(), contractID, "3.2")
	require.NoError(t, err)

	assert.Nil(t, view.Conflict)
	assert.Equal(t, []string{"agreement"}, effectiveIDs(view))
	require.Len(t, view.Entries, 3)
	assert.Equal(t, "agreement", view.Entries[0].Document.ID)
	assert.Equal(t, "gc", view.Entries[1].Document.ID)
	assert.Equal(t, "schedule", view.Entries[2].Document.ID)
	assert.Equal(t, []string{"gc", "schedule"}, view.Entries[0].Supersedes)
	assert.Equal(t, []string{"agreement"}, view.Entries[2].SupersededBy)
}

func TestResolveAddendumOverridesGeneralConditions(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	addendum := doc("addendum-2", contract.GroupAddendum, 2)

	r := newResolver(t, contract.Snapshot{
		Documents: []contract.Document{gc, addendum},
		Passages: []contract.Passage{
			passage("gc-14.1", gc, "14.1"),
			passage("ad-14.1", addendum, "Clause 14.1"),
		},
		Overrides: []contract.Override{
			{ID: "o1", OverridingID: "addendum-2", OverriddenID: "gc", Scope: "clause", Clauses: []string{"14.1"}},
		},
	})

	view, err := r.ResolveEffectiveClause(context.Background(), contractID, "14.1")
	require.NoError(t, err)

	effective, ok := view.Effective()
	require.True(t, ok)
	assert.Equal(t, "ad-14.1", effective.Passage.ID)
	assert.Equal(t, "text of ad-14.1", effective.Passage.Text)

	superseded, ok := view.Entry("gc")
	require.True(t, ok)
	assert.False(t, superseded.Effective)
	assert.Equal(t, []string{"addendum-2"}, superseded.SupersededBy)

	overridden, err := r.IsOverridden(context.Background(), contractID, "gc", "14.1")
	require.NoError(t, err)
	assert.True(t, overridden)
}

func TestResolveOverrideBeatsBaseRank(t *testing.T) {
	agreement := doc("agreement", contract.GroupAgreement, 0)
	schedule := doc("schedule", contract.GroupSchedule, 0)
	overrides := []contract.Override{
		{ID: "o1", OverridingID: "schedule", OverriddenID: "agreement", Clauses: []string{"8.1"}},
	}

	view := Resolve(contractID, "8.1",
		[]contract.Passage{passage("p-a", agreement, "8.1"), passage("p-n", schedule, "8.1")},
		[]contract.Document{agreement, schedule},
		overrides)

	assert.Equal(t, []string{"schedule"}, effectiveIDs(view))
	assert.True(t, IsOverridden(overrides, "agreement", "8.1"))
	assert.False(t, IsOverridden(overrides, "schedule", "8.1"))
}

func TestResolveContradictoryOverridesReportConflict(t *testing.T) {
	x := doc("addendum-2", contract.GroupAddendum, 2)
	y := doc("pc", contract.GroupConditions, 0)

	r := newResolver(t, contract.Snapshot{
		Documents: []contract.Document{x, y},
		Passages:  []contract.Passage{passage("px", x, "20.1"), passage("py", y, "20.1")},
		Overrides: []contract.Override{
			{ID: "o1", OverridingID: "addendum-2", OverriddenID: "pc", Clauses: []string{"20.1"}},
			{ID: "o2", OverridingID: "pc", OverriddenID: "addendum-2", Clauses: []string{"20.1"}},
		},
	})

	view, err := r.ResolveEffectiveClause(context.Background(), contractID, "20.1")
	require.NoError(t, err)

	require.NotNil(t, view.Conflict)
	assert.True(t, errors.Is(view.Conflict, contract.ErrPrecedenceConflict))
	assert.ElementsMatch(t, []string{"addendum-2", "pc"}, view.Conflict.DocumentIDs)
	assert.ElementsMatch(t, []string{"addendum-2", "pc"}, effectiveIDs(view))
	_, single := view.Effective()
	assert.False(t, single)
}

func TestResolveOverrideScopedToOtherClauseIsIgnored(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	schedule := doc("schedule", contract.GroupSchedule, 0)
	overrides := []contract.Override{
		{ID: "o1", OverridingID: "schedule", OverriddenID: "gc", Clauses: []string{"8.1"}},
	}

	view := Resolve(contractID, "14.1",
		[]contract.Passage{passage("p-c", gc, "14.1"), passage("p-n", schedule, "14.1")},
		[]contract.Document{gc, schedule}, overrides)

	assert.Equal(t, []string{"gc"}, effectiveIDs(view))
	assert.False(t, IsOverridden(overrides, "gc", "14.1"))
}

func TestResolveUnscopedOverrideAppliesToEveryClause(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	pc := doc("pc", contract.GroupConditions, 1)
	overrides := []contract.Override{{ID: "o1", OverridingID: "gc", OverriddenID: "pc"}}

	view := Resolve(contractID, "4.2",
		[]contract.Passage{passage("p-pc", pc, "4.2"), passage("p-gc", gc, "4.2")},
		[]contract.Document{gc, pc}, overrides)

	assert.Equal(t, []string{"gc"}, effectiveIDs(view))
	assert.True(t, IsOverridden(overrides, "pc", "99.9"))
}

func TestResolveTieBreaksWithinGroup(t *testing.T) {
	first := doc("addendum-1", contract.GroupAddendum, 1)
	second := doc("addendum-2", contract.GroupAddendum, 2)

	view := Resolve(contractID, "5.1",
		[]contract.Passage{passage("p1", first, "5.1"), passage("p2", second, "5.1")},
		[]contract.Document{first, second}, nil)
	assert.Equal(t, []string{"addendum-2"}, effectiveIDs(view))

	dated := doc("addendum-a", contract.GroupAddendum, 1)
	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dated.EffectiveDate = &later
	view = Resolve(contractID, "5.1",
		[]contract.Passage{passage("p1", first, "5.1"), passage("pa", dated, "5.1")},
		[]contract.Document{first, dated}, nil)
	assert.Equal(t, []string{"addendum-a"}, effectiveIDs(view))
}

func TestResolveSupersedesLinkRetiresOlderDocument(t *testing.T) {
	older := doc("addendum-1", contract.GroupAddendum, 3)
	newer := doc("addendum-2", contract.GroupAddendum, 2)
	newer.Supersedes = older.ID

	view := Resolve(contractID, "7.3",
		[]contract.Passage{passage("p1", older, "7.3"), passage("p2", newer, "7.3")},
		[]contract.Document{older, newer}, nil)

	assert.Equal(t, []string{"addendum-2"}, effectiveIDs(view))
	entry, ok := view.Entry("addendum-1")
	require.True(t, ok)
	assert.Equal(t, []string{"addendum-2"}, entry.SupersededBy)
}

func TestResolveSupersedesLinkKeepsGroupOrder(t *testing.T) {
	agreement := doc("agreement", contract.GroupAgreement, 0)
	first := doc("addendum-1", contract.GroupAddendum, 1)
	second := doc("addendum-2", contract.GroupAddendum, 2)
	second.Supersedes = first.ID

	view := Resolve(contractID, "8.1",
		[]contract.Passage{
			passage("p1", agreement, "8.1"),
			passage("p2", first, "8.1"),
			passage("p3", second, "8.1"),
		},
		[]contract.Document{agreement, first, second}, nil)

	assert.Equal(t, []string{"agreement"}, effectiveIDs(view))
	assert.Nil(t, view.Conflict)
	newer, ok := view.Entry("addendum-2")
	require.True(t, ok)
	assert.Equal(t, float64(contract.BaseRank(contract.GroupAddendum)), newer.Priority)
	assert.Equal(t, []string{"agreement"}, newer.SupersededBy)
	older, ok := view.Entry("addendum-1")
	require.True(t, ok)
	assert.False(t, older.Effective)
	assert.Equal(t, []string{"addendum-2"}, older.SupersededBy)
}

func TestResolveSupersedingDocumentInheritsOverrideDepth(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	agreement := doc("agreement", contract.GroupAgreement, 0)
	first := doc("addendum-1", contract.GroupAddendum, 1)
	second := doc("addendum-2", contract.GroupAddendum, 2)
	second.Supersedes = first.ID
	overrides := []contract.Override{{ID: "o1", OverridingID: first.ID, OverriddenID: gc.ID, Clauses: []string{"9.2"}}}

	view := Resolve(contractID, "9.2",
		[]contract.Passage{
			passage("p0", gc, "9.2"),
			passage("p1", agreement, "9.2"),
			passage("p2", first, "9.2"),
			passage("p3", second, "9.2"),
		},
		[]contract.Document{gc, agreement, first, second}, overrides)

	assert.Equal(t, []string{"addendum-2"}, effectiveIDs(view))
	older, ok := view.Entry("addendum-1")
	require.True(t, ok)
	assert.False(t, older.Effective)
	assert.Equal(t, []string{"addendum-2"}, older.SupersededBy)
}

func TestResolveIsDeterministic(t *testing.T) {
	a := doc("d-a", contract.GroupAddendum, 1)
	b := doc("d-b", contract.GroupAddendum, 1)
	c := doc("c", contract.GroupConditions, 0)
	passages := []contract.Passage{passage("pa", a, "2.1"), passage("pb", b, "2.1"), passage("pc", c, "2.1")}
	docs := []contract.Document{c, b, a}

	first := Resolve(contractID, "2.1", passages, docs, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Resolve(contractID, "2.1", passages, docs, nil))
	}
	assert.Equal(t, []string{"d-a"}, effectiveIDs(first))
}

func TestResolveEffectiveClauseErrors(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	r := newResolver(t, contract.Snapshot{
		Documents: []contract.Document{gc},
		Passages:  []contract.Passage{passage("p", gc, "1.1")},
	})

	_, err := r.ResolveEffectiveClause(context.Background(), contractID, "  ")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = r.ResolveEffectiveClause(context.Background(), contractID, "99.9")
	assert.ErrorIs(t, err, contract.ErrNotFound)
	var nf *contract.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "99.9", nf.ClauseNumber)
}

func TestResolveManySkipsMissingClauses(t *testing.T) {
	gc := doc("gc", contract.GroupConditions, 0)
	r := newResolver(t, contract.Snapshot{
		Documents: []contract.Document{gc},
		Passages:  []contract.Passage{passage("p1", gc, "1.1"), passage("p2", gc, "2.4")},
	})

	views, err := r.ResolveMany(context.Background(), contractID, []string{"1.1", "Clause 1.1", "9.9", "2.4"})
	require.NoError(t, err)
	assert.Len(t, views, 2)
	assert.Contains(t, views, "1.1")
	assert.Contains(t, views, "2.4")
}
