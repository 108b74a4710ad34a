package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCreateEdgesSquare(t *testing.T) {
	m := unitSquareMesh(t)
	require.NoError(t, m.CreateEdges())

	assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {2, 3}}, m.EdgeNodes)
	assert.Equal(t, []bool{true, false, true, true, true}, m.IsBoundaryEdge)

	// Slot k of a cell holds the edge opposite node k.
	assert.Equal(t, [3]int{3, 1, 0}, m.CellEdges[0])
	assert.Equal(t, [3]int{4, 2, 1}, m.CellEdges[1])
}

func TestEdgeGID(t *testing.T) {
	m := unitSquareMesh(t)

	gid, ok := m.EdgeGID(2, 0)
	require.True(t, ok)
	assert.Equal(t, 1, gid)

	_, ok = m.EdgeGID(1, 3)
	assert.False(t, ok)
}

func TestEdgeCells(t *testing.T) {
	m := unitSquareMesh(t)

	cells, err := m.EdgeCells(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, cells)

	cells, err = m.EdgeCells(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, cells)

	_, err = m.EdgeCells(99)
	assert.Error(t, err)
}

func TestInteriorEdgeGIDs(t *testing.T) {
	m := unitSquareMesh(t)
	gids, err := m.InteriorEdgeGIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, gids)
}

func TestCreateEdgesRejectsNonManifold(t *testing.T) {
	// Three cells sharing the edge (0,1).
	X := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 0,
		0.5, 1,
		0.5, -1,
		0.5, 2,
	})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}, {0, 1, 3}, {0, 1, 4}}, Config{})
	require.NoError(t, err)
	assert.Error(t, m.CreateEdges())
}

func TestMarkBoundary(t *testing.T) {
	m := gridMesh(t, 3, 3)
	mask, err := m.MarkBoundary()
	require.NoError(t, err)
	// Only the grid center is interior.
	want := []bool{true, true, true, true, false, true, true, true, true}
	assert.Equal(t, want, mask)

	nodes, err := m.BoundaryNodes()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8}, nodes)
}
