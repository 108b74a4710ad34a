package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/gocfd/types"
)

// maxFlipPasses bounds the flip fixed-point loop. Healthy meshes converge in
// a handful of passes; hitting the cap indicates a configuration that cannot
// be repaired by flipping (e.g. degenerate boundary cells) and is an error.
const maxFlipPasses = 100

// FlipUntilDelaunay flips interior edges with a negative aggregated
// covolume-edge ratio, in batches, until none remain. It returns the number
// of flip passes performed; the mesh needed repair in more than one batch
// exactly when the count exceeds one. Unavailable under full flat-cell
// correction, which already guarantees non-negative interior ratios.
func (m *Mesh) FlipUntilDelaunay() (int, error) {
	if m.fccType == CorrectionFull {
		return 0, fmt.Errorf("mesh: edge flipping is incompatible with full flat-cell correction")
	}

	// If every half-edge ratio is positive, all cells are Delaunay already.
	allPositive := true
	for k := 0; k < 3 && allPositive; k++ {
		for _, r := range m.CERatiosPerHalfEdge[k] {
			if r <= 0 {
				allPositive = false
				break
			}
		}
	}
	if allPositive {
		return 0, nil
	}

	passes := 0
	for {
		ratios, err := m.InteriorCERatios()
		if err != nil {
			return passes, err
		}
		flip := make([]bool, len(ratios))
		any := false
		for i, r := range ratios {
			if r < 0 {
				flip[i] = true
				any = true
			}
		}
		if !any {
			return passes, nil
		}
		if passes == maxFlipPasses {
			return passes, fmt.Errorf("mesh: delaunay flipping did not converge within %d passes", maxFlipPasses)
		}
		passes++
		if err := m.flipInteriorEdges(flip); err != nil {
			return passes, err
		}
	}
}

// flipInteriorEdges flips the flagged interior edges (indexed like
// InteriorCERatios) as one batch. No cell may be adjacent to more than one
// flagged edge; the flips are then independent local retriangulations whose
// touched topology and cache entries are patched in place.
func (m *Mesh) flipInteriorEdges(flip []bool) error {
	if m.fccType == CorrectionFull {
		return fmt.Errorf("mesh: edge flipping is incompatible with full flat-cell correction")
	}
	if err := m.computeEdgesCells(); err != nil {
		return err
	}
	if len(flip) != len(m.interiorEdgeGIDs) {
		return fmt.Errorf("mesh: flip mask has %d entries for %d interior edges", len(flip), len(m.interiorEdgeGIDs))
	}

	var flipIdx []int
	inBatch := make(map[int]bool)
	for i, f := range flip {
		if !f {
			continue
		}
		for _, c := range m.interiorEdgeCells[i] {
			if inBatch[c] {
				return fmt.Errorf("mesh: cell %d is adjacent to more than one edge scheduled for flipping", c)
			}
			inBatch[c] = true
		}
		flipIdx = append(flipIdx, i)
	}
	if len(flipIdx) == 0 {
		return nil
	}

	affectedCells := make([]int, 0, 2*len(flipIdx))
	for _, i := range flipIdx {
		if err := m.flipOne(i); err != nil {
			return err
		}
		affectedCells = append(affectedCells, m.interiorEdgeCells[i][0], m.interiorEdgeCells[i][1])
	}
	sort.Ints(affectedCells)

	// All interior edges of the affected cells need their aggregated ratio
	// re-summed; their half-edge contributions may have moved between cells.
	edgeSet := make(map[int]bool)
	for _, c := range affectedCells {
		for k := 0; k < 3; k++ {
			gid := m.CellEdges[c][k]
			if m.edgeDegree[gid] == 2 {
				edgeSet[m.edgeListIndex[gid]] = true
			}
		}
	}
	interiorIdx := make([]int, 0, len(edgeSet))
	for i := range edgeSet {
		interiorIdx = append(interiorIdx, i)
	}
	sort.Ints(interiorIdx)

	return m.updateCellValues(affectedCells, interiorIdx)
}

// flipOne replaces the diagonal of the quadrilateral formed by the two cells
// adjacent to interior edge i:
//
//	     3                   3
//	     A                   A
//	    /|\                 / \
//	   / | \               /   \
//	  /  |  \             /  1  \
//	0/ 0 |   \1   ==>   0/_______\1
//	 \   | 1 /           \       /
//	  \  |  /             \  0  /
//	   \ | /               \   /
//	    \|/                 \ /
//	     V                   V
//	     2                   2
func (m *Mesh) flipOne(i int) error {
	gid := m.interiorEdgeGIDs[i]
	c0, c1 := m.interiorEdgeCells[i][0], m.interiorEdgeCells[i][1]
	l0, err := m.localEdgeIndex(c0, gid)
	if err != nil {
		return err
	}
	l1, err := m.localEdgeIndex(c1, gid)
	if err != nil {
		return err
	}

	// The two apexes and the two nodes of the edge being removed.
	v0 := m.CellNodes[c0][l0]
	v1 := m.CellNodes[c1][l1]
	v2 := m.CellNodes[c0][(l0+1)%3]
	v3 := m.CellNodes[c0][(l0+2)%3]

	// Do the neighboring cells wind their nodes in the same direction?
	equalOrientation := m.CellNodes[c0][(l0+1)%3] == m.CellNodes[c1][(l1+2)%3]

	// The flipped edge now connects the former apexes.
	delete(m.edgeGIDByKey, types.NewEdgeKey(m.EdgeNodes[gid]))
	en := [2]int{v0, v1}
	if en[0] > en[1] {
		en[0], en[1] = en[1], en[0]
	}
	m.EdgeNodes[gid] = en
	m.edgeGIDByKey[types.NewEdgeKey(en)] = gid

	m.CellNodes[c0] = [3]int{v0, v1, v2}
	m.CellNodes[c1] = [3]int{v0, v1, v3}

	prev0 := m.CellEdges[c0]
	prev1 := m.CellEdges[c1]
	i0, i1 := 1, 2
	if !equalOrientation {
		i0, i1 = 2, 1
	}
	m.CellEdges[c0] = [3]int{prev1[(l1+i0)%3], prev0[(l0+2)%3], gid}
	m.CellEdges[c1] = [3]int{prev1[(l1+i1)%3], prev0[(l0+1)%3], gid}

	// Two of the surrounding edges changed owner cells; the flipped edge's
	// own adjacency (c0, c1) is unchanged.
	if err := m.reassignEdgeCell(prev0[(l0+1)%3], c0, c1); err != nil {
		return err
	}
	return m.reassignEdgeCell(prev1[(l1+i0)%3], c1, c0)
}

// reassignEdgeCell repoints the adjacency slot of edge gid from one cell to
// another after a flip moved the edge between the two retriangulated cells.
func (m *Mesh) reassignEdgeCell(gid, from, to int) error {
	li := m.edgeListIndex[gid]
	switch m.edgeDegree[gid] {
	case 1:
		if m.boundaryEdgeCells[li] != from {
			return fmt.Errorf("mesh: boundary edge %d is not adjacent to cell %d", gid, from)
		}
		m.boundaryEdgeCells[li] = to
	case 2:
		pair := &m.interiorEdgeCells[li]
		switch from {
		case pair[0]:
			pair[0] = to
		case pair[1]:
			pair[1] = to
		default:
			return fmt.Errorf("mesh: interior edge %d is not adjacent to cell %d", gid, from)
		}
	default:
		return fmt.Errorf("mesh: edge %d has %d adjacent cells", gid, m.edgeDegree[gid])
	}
	return nil
}

// updateCellValues patches the cached quantities touched by a flip batch:
// half-edge data, areas and ratios are recomputed for exactly the affected
// cells, the aggregated interior ratios are re-summed for exactly the
// affected edges, and everything not cheaply patchable is invalidated for
// lazy recomputation.
func (m *Mesh) updateCellValues(cellIDs, interiorEdgeIdx []int) error {
	m.refreshCellGeometry(cellIDs)

	if m.interiorCERatios != nil {
		for _, ie := range interiorEdgeIdx {
			m.interiorCERatios[ie] = 0
		}
		for _, ie := range interiorEdgeIdx {
			gid := m.interiorEdgeGIDs[ie]
			for _, c := range m.interiorEdgeCells[ie] {
				k, err := m.localEdgeIndex(c, gid)
				if err != nil {
					return err
				}
				m.interiorCERatios[ie] += m.CERatiosPerHalfEdge[k][c]
			}
		}
	}

	if m.signedTriAreas != nil {
		for _, c := range cellIDs {
			m.signedTriAreas[c] = m.signedAreaOfCell(c)
		}
	}

	m.cellPartitions = [3][]float64{}
	m.edgeLengths = [3][]float64{}
	m.controlVolumes = nil
	m.cvCentroids = nil
	m.surfaceAreas = nil
	m.cellCentroids = nil
	m.cellCircumcenters = nil
	m.subdomains = make(map[string][]bool)
	return nil
}
