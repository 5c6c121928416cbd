package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func company(id, name string) Node {
	return Node{ID: id, Name: name, Kind: KindCompany, Bipartite: SideOrganisation}
}

func officer(id, name string) Node {
	return Node{ID: id, Name: name, Kind: KindOfficer, Bipartite: SidePerson, IsPerson: true}
}

func TestGraph_AddNode(t *testing.T) {
	g := New()

	assert.True(t, g.AddNode(company("04547069", "PUNCHDRUNK")))
	assert.True(t, g.HasNode("04547069"))
	assert.Equal(t, 1, g.NumNodes())

	t.Run("first write wins", func(t *testing.T) {
		assert.False(t, g.AddNode(company("04547069", "SOMETHING ELSE")))

		n, ok := g.Node("04547069")
		require.True(t, ok)
		assert.Equal(t, "PUNCHDRUNK", n.Name)
		assert.Equal(t, 1, g.NumNodes())
	})
}

func TestGraph_AddEdge(t *testing.T) {
	g := New()
	g.AddNode(company("04547069", "PUNCHDRUNK"))
	g.AddNode(officer("kk4hteZw_nx0lRsy5RJvTXHnM7M", "Colin MARSH"))

	require.NoError(t, g.AddEdge("04547069", "kk4hteZw_nx0lRsy5RJvTXHnM7M", nil))
	assert.True(t, g.HasEdge("04547069", "kk4hteZw_nx0lRsy5RJvTXHnM7M"))
	assert.True(t, g.HasEdge("kk4hteZw_nx0lRsy5RJvTXHnM7M", "04547069"))
	assert.True(t, g.IsBipartite())

	t.Run("missing endpoint rejected", func(t *testing.T) {
		err := g.AddEdge("04547069", "missing", nil)
		assert.Error(t, err)
	})

	t.Run("same side rejected", func(t *testing.T) {
		g.AddNode(company("00877987", "ANOTHER"))
		err := g.AddEdge("04547069", "00877987", nil)
		assert.Error(t, err)
		assert.True(t, g.IsBipartite())
	})

	t.Run("no parallel edges, first data wins", func(t *testing.T) {
		require.NoError(t, g.AddEdge("04547069", "kk4hteZw_nx0lRsy5RJvTXHnM7M",
			map[string]interface{}{"role": "director"}))
		assert.Equal(t, 1, g.NumEdges())

		e, ok := g.Edge("04547069", "kk4hteZw_nx0lRsy5RJvTXHnM7M")
		require.True(t, ok)
		assert.Nil(t, e.Data)
	})

	t.Run("arguments normalized to org-person order", func(t *testing.T) {
		g.AddNode(officer("officer-2", "Second Officer"))
		require.NoError(t, g.AddEdge("officer-2", "04547069", nil))

		e, ok := g.Edge("04547069", "officer-2")
		require.True(t, ok)
		assert.Equal(t, "04547069", e.Org)
		assert.Equal(t, "officer-2", e.Person)
	})
}

func TestGraph_RemoveNode(t *testing.T) {
	g := New()
	g.AddNode(company("c1", "One"))
	g.AddNode(company("c2", "Two"))
	g.AddNode(officer("p1", "Shared Officer"))
	require.NoError(t, g.AddEdge("c1", "p1", nil))
	require.NoError(t, g.AddEdge("c2", "p1", nil))

	g.RemoveNode("p1")

	assert.False(t, g.HasNode("p1"))
	assert.Equal(t, 0, g.NumEdges())
	assert.False(t, g.HasEdge("c1", "p1"))
	assert.Equal(t, 2, g.NumNodes())

	// Removing an absent node is a no-op.
	g.RemoveNode("p1")
	assert.Equal(t, 2, g.NumNodes())
}

func TestGraph_ConnectedComponents(t *testing.T) {
	g := New()
	assert.Equal(t, 0, g.ConnectedComponents())

	g.AddNode(company("c1", "One"))
	g.AddNode(company("c2", "Two"))
	g.AddNode(officer("p1", "Officer"))
	assert.Equal(t, 3, g.ConnectedComponents())

	require.NoError(t, g.AddEdge("c1", "p1", nil))
	assert.Equal(t, 2, g.ConnectedComponents())

	require.NoError(t, g.AddEdge("c2", "p1", nil))
	assert.Equal(t, 1, g.ConnectedComponents())
}

func TestGraph_Compose(t *testing.T) {
	a := New()
	a.AddNode(company("c1", "Original Name"))
	a.AddNode(officer("p1", "Officer One"))
	require.NoError(t, a.AddEdge("c1", "p1", map[string]interface{}{"seen": "first"}))

	b := New()
	b.AddNode(company("c1", "Conflicting Name"))
	b.AddNode(officer("p2", "Officer Two"))
	require.NoError(t, b.AddEdge("c1", "p2", nil))

	require.NoError(t, a.Compose(b))

	assert.Equal(t, []string{"c1", "p1", "p2"}, a.NodeIDs())
	assert.Equal(t, []string{"c1|p1", "c1|p2"}, a.EdgeIDs())
	assert.True(t, a.IsBipartite())

	n, ok := a.Node("c1")
	require.True(t, ok)
	assert.Equal(t, "Original Name", n.Name)

	require.NoError(t, a.Compose(nil))
	assert.Equal(t, 3, a.NumNodes())
}

func TestGraph_Copy(t *testing.T) {
	g := New()
	g.AddNode(company("c1", "One"))
	g.AddNode(officer("p1", "Officer"))
	require.NoError(t, g.AddEdge("c1", "p1", nil))

	clone := g.Copy()
	clone.RemoveNode("p1")

	assert.True(t, g.HasNode("p1"))
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 0, clone.NumEdges())
}

func TestGraph_Order(t *testing.T) {
	g := New()
	g.AddNode(company("z", "Last Letter"))
	g.AddNode(company("a", "First Letter"))

	nodes := g.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "z", nodes[0].ID)
	assert.Equal(t, "a", nodes[1].ID)

	// Sorted views are stable regardless of insertion order.
	assert.Equal(t, []string{"a", "z"}, g.NodeIDs())
}
