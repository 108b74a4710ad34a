package mesh

import (
	"fmt"

	"github.com/notargets/gocfd/types"

	"github.com/notargets/trimesh/utils"
)

// CreateEdges derives the unique edge table and the cell->edge relations from
// the cell corners: every cell contributes its three boundary segments, which
// are deduplicated into a sorted edge table. Idempotent; topology mutations
// patch the tables in place instead of rebuilding them.
func (m *Mesh) CreateEdges() error {
	if m.EdgeNodes != nil {
		return nil
	}
	numCells := len(m.CellNodes)
	rows := make([][2]int, 0, 3*numCells)
	for k := 0; k < 3; k++ {
		for _, cn := range m.CellNodes {
			a, b := cn[localIdx[k][0]], cn[localIdx[k][1]]
			if a > b {
				a, b = b, a
			}
			rows = append(rows, [2]int{a, b})
		}
	}
	uniq, inv, counts := utils.UniqueRows(rows)

	// An edge with more than two adjacent cells means a non-manifold mesh or
	// a duplicated cell; not recoverable locally.
	for gid, ct := range counts {
		if ct > 2 {
			return fmt.Errorf("mesh: edge (%d,%d) is shared by %d cells", uniq[gid][0], uniq[gid][1], ct)
		}
	}

	m.EdgeNodes = uniq
	m.IsBoundaryEdge = make([]bool, len(uniq))
	for gid, ct := range counts {
		m.IsBoundaryEdge[gid] = ct == 1
	}
	m.CellEdges = make([][3]int, numCells)
	for k := 0; k < 3; k++ {
		for c := 0; c < numCells; c++ {
			m.CellEdges[c][k] = inv[k*numCells+c]
		}
	}

	m.edgeGIDByKey = make(map[types.EdgeKey]int, len(uniq))
	for gid, en := range uniq {
		m.edgeGIDByKey[types.NewEdgeKey([2]int{en[0], en[1]})] = gid
	}

	// Adjacency is rebuilt on demand.
	m.boundaryEdgeCells = nil
	m.interiorEdgeCells = nil
	m.edgeDegree = nil
	m.edgeListIndex = nil
	m.boundaryEdgeGIDs = nil
	m.interiorEdgeGIDs = nil
	return nil
}

// computeEdgesCells builds the edge->adjacent-cells index: a one-cell slot per
// boundary edge and a two-cell slot per interior edge, plus the per-gid
// (degree, list index) record used for incremental updates by the flip engine.
func (m *Mesh) computeEdgesCells() error {
	if err := m.CreateEdges(); err != nil {
		return err
	}
	if m.edgeDegree != nil {
		return nil
	}
	numEdges := len(m.EdgeNodes)
	adj := make([][2]int, numEdges)
	deg := make([]int, numEdges)
	for c, ce := range m.CellEdges {
		for k := 0; k < 3; k++ {
			gid := ce[k]
			if deg[gid] == 2 {
				return fmt.Errorf("mesh: edge %d has more than two adjacent cells", gid)
			}
			adj[gid][deg[gid]] = c
			deg[gid]++
		}
	}

	listIdx := make([]int, numEdges)
	var bCells, bGIDs, iGIDs []int
	var iCells [][2]int
	for gid := 0; gid < numEdges; gid++ {
		switch deg[gid] {
		case 1:
			listIdx[gid] = len(bCells)
			bCells = append(bCells, adj[gid][0])
			bGIDs = append(bGIDs, gid)
		case 2:
			listIdx[gid] = len(iCells)
			iCells = append(iCells, adj[gid])
			iGIDs = append(iGIDs, gid)
		default:
			return fmt.Errorf("mesh: edge %d has %d adjacent cells", gid, deg[gid])
		}
	}
	m.edgeDegree = deg
	m.edgeListIndex = listIdx
	m.boundaryEdgeCells = bCells
	m.interiorEdgeCells = iCells
	m.boundaryEdgeGIDs = bGIDs
	m.interiorEdgeGIDs = iGIDs
	return nil
}

// EdgeGID looks up the global id of the edge connecting the two nodes.
func (m *Mesh) EdgeGID(n0, n1 int) (int, bool) {
	if err := m.CreateEdges(); err != nil {
		return -1, false
	}
	gid, ok := m.edgeGIDByKey[types.NewEdgeKey([2]int{n0, n1})]
	if !ok {
		return -1, false
	}
	return gid, true
}

// InteriorEdgeGIDs returns the global edge ids with two adjacent cells, in
// edge-table order.
func (m *Mesh) InteriorEdgeGIDs() ([]int, error) {
	if err := m.computeEdgesCells(); err != nil {
		return nil, err
	}
	return m.interiorEdgeGIDs, nil
}

// EdgeCells returns the cells adjacent to the given edge (one or two).
func (m *Mesh) EdgeCells(gid int) ([]int, error) {
	if err := m.computeEdgesCells(); err != nil {
		return nil, err
	}
	if gid < 0 || gid >= len(m.edgeDegree) {
		return nil, fmt.Errorf("mesh: edge %d out of range", gid)
	}
	if m.edgeDegree[gid] == 1 {
		return []int{m.boundaryEdgeCells[m.edgeListIndex[gid]]}, nil
	}
	pair := m.interiorEdgeCells[m.edgeListIndex[gid]]
	return []int{pair[0], pair[1]}, nil
}

// localEdgeIndex returns the slot of edge gid within cell c's edge triple.
func (m *Mesh) localEdgeIndex(c, gid int) (int, error) {
	for k := 0; k < 3; k++ {
		if m.CellEdges[c][k] == gid {
			return k, nil
		}
	}
	return -1, fmt.Errorf("mesh: cell %d does not carry edge %d", c, gid)
}

// MarkBoundary computes the per-node boundary mask.
func (m *Mesh) MarkBoundary() ([]bool, error) {
	if m.isBoundaryNode == nil {
		if err := m.CreateEdges(); err != nil {
			return nil, err
		}
		numNodes, _ := m.NodeCoords.Dims()
		mask := make([]bool, numNodes)
		for gid, en := range m.EdgeNodes {
			if m.IsBoundaryEdge[gid] {
				mask[en[0]] = true
				mask[en[1]] = true
			}
		}
		m.isBoundaryNode = mask
	}
	return m.isBoundaryNode, nil
}

// BoundaryNodes returns the ids of all nodes on the mesh boundary.
func (m *Mesh) BoundaryNodes() ([]int, error) {
	mask, err := m.MarkBoundary()
	if err != nil {
		return nil, err
	}
	var ids []int
	for n, b := range mask {
		if b {
			ids = append(ids, n)
		}
	}
	return ids, nil
}
