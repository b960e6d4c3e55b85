package tdocs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentLineageAccessors(t *testing.T) {
	d := Document{
		ID:         "S2-1900002",
		RevisionOf: "S2-1900001",
		MergeOf:    []string{"S2-1900005"},
		MergedTo:   []string{"S2-1900009"},
	}
	require.Equal(t, []string{"S2-1900001", "S2-1900005"}, d.Predecessors())
	require.Equal(t, []string{"S2-1900009"}, d.Successors())
	require.Empty(t, Document{}.Predecessors())
}

func TestTableAccess(t *testing.T) {
	table := NewTable([]Document{
		{ID: "S2-1900001", AgendaItem: "10.1", AgendaTag: AgendaTag("10.1"), Result: "For e-mail approval"},
		{ID: "S2-1900002", AgendaItem: "6.2", AgendaTag: AgendaTag("6.2"), Result: " for E-mail approval "},
		{ID: "S2-1900003", AgendaItem: "10.1", AgendaTag: AgendaTag("10.1"), Result: "Agreed"},
	})
	require.Equal(t, 3, table.Len())
	require.Equal(t, 2, table.EmailApprovalCount())

	items, ids := table.ByAgendaItem()
	require.Equal(t, []string{"6.2", "10.1"}, items)
	require.Equal(t, []string{"S2-1900001", "S2-1900003"}, ids["10.1"])

	_, ok := table.Get("S2-1999999")
	require.False(t, ok)

	docs := table.Documents()
	docs[0].Result = "changed"
	d, _ := table.Get("S2-1900001")
	require.Equal(t, "For e-mail approval", d.Result)

	table.At(0).Result = "Noted"
	d, _ = table.Get("S2-1900001")
	require.Equal(t, "Noted", d.Result)
}

func TestNilTable(t *testing.T) {
	var table *Table
	require.Zero(t, table.Len())
	require.Nil(t, table.Documents())
	require.Zero(t, table.EmailApprovalCount())
	_, ok := table.Get("S2-1900001")
	require.False(t, ok)
}
