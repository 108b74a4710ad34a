// Package mesh maintains a triangular surface mesh together with the derived
// geometric quantities needed by finite-volume discretizations: per-half-edge
// covolume-edge ratios, control volumes, control-volume centroids, boundary
// surface areas and circumcenters. It also provides Delaunay edge flipping,
// the local-surgery operation that repairs the sign conditions finite-volume
// schemes require.
package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/gocfd/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/trimesh/geometry"
)

// CorrectionType selects the flat-cell correction mode applied at
// construction.
type CorrectionType int

const (
	// CorrectionNone leaves degenerate cells untouched; the flip engine is
	// then the only repair mechanism.
	CorrectionNone CorrectionType = iota
	// CorrectionBoundary redoes only cells whose negative covolume-edge ratio
	// sits on a boundary edge. This best imitates the classical notion of
	// control volumes.
	CorrectionBoundary
	// CorrectionFull redoes every cell with a negative covolume-edge ratio.
	// Edge flipping is unavailable in this mode.
	CorrectionFull
)

// Config collects the construction options for a Mesh.
type Config struct {
	// SortCells sorts each node triple and then the cell rows before any
	// topology is derived, giving deterministic downstream orderings (useful
	// when assembling sparse systems from the cells/edges).
	SortCells bool

	// FlatCellCorrection selects how cells with a negative covolume-edge
	// ratio are corrected at construction.
	FlatCellCorrection CorrectionType
}

// localIdx defines the half-edge endpoints: half-edge k runs from node
// (k+1)%3 to node (k+2)%3, so edge k is always opposite node k.
var localIdx = [3][2]int{{1, 2}, {2, 0}, {0, 1}}

// Mesh is a triangular mesh with cached derived quantities. The node set and
// cell count are fixed for the lifetime of the mesh; node coordinates change
// only through UpdateNodeCoordinates and topology only through edge flips.
// Derived quantities are computed lazily and invalidated (nil means stale) on
// mutation; the flip engine instead patches the affected entries in place.
type Mesh struct {
	// NodeCoords is the numNodes x dim coordinate table (dim 2 or 3).
	NodeCoords *mat.Dense
	// CellNodes maps each cell to its node triple. Edge k is opposite node k.
	CellNodes [][3]int

	// Per-cell half-edge data, maintained eagerly. HalfEdgeCoords[k] holds in
	// row c the vector of half-edge k of cell c.
	HalfEdgeCoords [3]*mat.Dense
	// EiDotEj[k][c] is the dot product of the two half-edges adjacent to
	// local edge k of cell c, i.e. <e_{k+1}, e_{k+2}>.
	EiDotEj [3][]float64
	// EiDotEi[k][c] is the squared length of half-edge k of cell c.
	EiDotEi [3][]float64
	// CellVolumes holds the (unsigned) triangle areas.
	CellVolumes []float64
	// CERatiosPerHalfEdge[k][c] is the covolume-edge ratio contributed by
	// half-edge k of cell c.
	CERatiosPerHalfEdge [3][]float64

	// Edge topology, built lazily by CreateEdges.
	EdgeNodes      [][2]int // edge gid -> node pair, smaller node first
	CellEdges      [][3]int // cell -> edge gids, slot k opposite node k
	IsBoundaryEdge []bool   // per edge gid: exactly one adjacent cell

	// Edge -> cells adjacency, built by computeEdgesCells. Boundary edges own
	// a single-cell slot, interior edges a two-cell slot.
	boundaryEdgeCells []int
	interiorEdgeCells [][2]int
	edgeDegree        []int // per gid: 1 or 2
	edgeListIndex     []int // per gid: index into the boundary or interior list
	boundaryEdgeGIDs  []int
	interiorEdgeGIDs  []int
	edgeGIDByKey      map[types.EdgeKey]int

	fccType      CorrectionType
	fcc          *FlatCellCorrector
	fccCells     []int
	regularCells []int // nil while no corrector is active (= all cells)

	// Lazily computed quantities; nil marks "stale, recompute on next read".
	interiorCERatios  []float64
	cellPartitions    [3][]float64
	controlVolumes    []float64
	cvCentroids       *mat.Dense
	surfaceAreas      []float64
	cellCentroids     *mat.Dense
	cellCircumcenters *mat.Dense
	signedTriAreas    []float64
	edgeLengths       [3][]float64
	isBoundaryNode    []bool
	subdomains        map[string][]bool
}

// NewMesh builds a mesh from a node-coordinate table and a cell->node table.
// Every node must be referenced by at least one cell.
func NewMesh(nodeCoords *mat.Dense, cellNodes [][3]int, cfg Config) (*Mesh, error) {
	if nodeCoords == nil {
		return nil, fmt.Errorf("mesh: nil node coordinates")
	}
	numNodes, dim := nodeCoords.Dims()
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("mesh: node coordinates must be 2D or 3D, got %dD", dim)
	}
	if len(cellNodes) == 0 {
		return nil, fmt.Errorf("mesh: need at least one cell")
	}

	cells := make([][3]int, len(cellNodes))
	copy(cells, cellNodes)
	if cfg.SortCells {
		sortCellTable(cells)
	}

	used := make([]bool, numNodes)
	for c, cn := range cells {
		for _, n := range cn {
			if n < 0 || n >= numNodes {
				return nil, fmt.Errorf("mesh: cell %d references node %d, have %d nodes", c, n, numNodes)
			}
			used[n] = true
		}
	}
	for n, u := range used {
		if !u {
			return nil, fmt.Errorf("mesh: node %d is not referenced by any cell", n)
		}
	}

	m := &Mesh{
		NodeCoords: nodeCoords,
		CellNodes:  cells,
		fccType:    cfg.FlatCellCorrection,
		subdomains: make(map[string][]bool),
	}
	m.refreshCellGeometry(nil)

	switch cfg.FlatCellCorrection {
	case CorrectionNone:
	case CorrectionBoundary, CorrectionFull:
		if err := m.applyFlatCellCorrection(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("mesh: unknown flat-cell correction mode %d", cfg.FlatCellCorrection)
	}
	return m, nil
}

// sortCellTable sorts each node triple ascending, then the rows
// lexicographically.
func sortCellTable(cells [][3]int) {
	for c := range cells {
		cn := &cells[c]
		if cn[0] > cn[1] {
			cn[0], cn[1] = cn[1], cn[0]
		}
		if cn[1] > cn[2] {
			cn[1], cn[2] = cn[2], cn[1]
		}
		if cn[0] > cn[1] {
			cn[0], cn[1] = cn[1], cn[0]
		}
	}
	sort.Slice(cells, func(a, b int) bool {
		ca, cb := cells[a], cells[b]
		if ca[0] != cb[0] {
			return ca[0] < cb[0]
		}
		if ca[1] != cb[1] {
			return ca[1] < cb[1]
		}
		return ca[2] < cb[2]
	})
}

// refreshCellGeometry recomputes the half-edge vectors, pairwise dot products,
// squared lengths, areas and covolume-edge ratios for the given cells, or for
// all cells when cellIDs is nil.
func (m *Mesh) refreshCellGeometry(cellIDs []int) {
	numCells := len(m.CellNodes)
	_, dim := m.NodeCoords.Dims()
	if m.HalfEdgeCoords[0] == nil {
		for k := 0; k < 3; k++ {
			m.HalfEdgeCoords[k] = mat.NewDense(numCells, dim, nil)
			m.EiDotEj[k] = make([]float64, numCells)
			m.EiDotEi[k] = make([]float64, numCells)
			m.CERatiosPerHalfEdge[k] = make([]float64, numCells)
		}
		m.CellVolumes = make([]float64, numCells)
	}
	if cellIDs == nil {
		cellIDs = m.allCellIDs()
	}
	for _, c := range cellIDs {
		cn := m.CellNodes[c]
		for k := 0; k < 3; k++ {
			from := m.NodeCoords.RawRowView(cn[localIdx[k][0]])
			to := m.NodeCoords.RawRowView(cn[localIdx[k][1]])
			floats.SubTo(m.HalfEdgeCoords[k].RawRowView(c), to, from)
		}
		var dots [3]float64
		for k := 0; k < 3; k++ {
			ek := m.HalfEdgeCoords[k].RawRowView(c)
			e1 := m.HalfEdgeCoords[(k+1)%3].RawRowView(c)
			e2 := m.HalfEdgeCoords[(k+2)%3].RawRowView(c)
			m.EiDotEi[k][c] = floats.Dot(ek, ek)
			m.EiDotEj[k][c] = floats.Dot(e1, e2)
			dots[k] = m.EiDotEj[k][c]
		}
		area, ratios := geometry.TriAreaCERatios(dots)
		m.CellVolumes[c] = area
		for k := 0; k < 3; k++ {
			m.CERatiosPerHalfEdge[k][c] = ratios[k]
		}
	}
}

// invalidateDerived clears every lazily computed quantity.
func (m *Mesh) invalidateDerived() {
	m.interiorCERatios = nil
	m.cellPartitions = [3][]float64{}
	m.controlVolumes = nil
	m.cvCentroids = nil
	m.surfaceAreas = nil
	m.cellCentroids = nil
	m.cellCircumcenters = nil
	m.signedTriAreas = nil
	m.edgeLengths = [3][]float64{}
	m.isBoundaryNode = nil
	m.subdomains = make(map[string][]bool)
}

// UpdateNodeCoordinates replaces the node coordinate table in bulk. The shape
// must match and no flat-cell correction may be active; the eagerly held
// half-edge data is recomputed and all derived quantities are invalidated.
// Topology is unchanged.
func (m *Mesh) UpdateNodeCoordinates(X *mat.Dense) error {
	if m.fccType != CorrectionNone {
		return fmt.Errorf("mesh: cannot update coordinates while flat-cell correction is active")
	}
	nr, nc := X.Dims()
	or, oc := m.NodeCoords.Dims()
	if nr != or || nc != oc {
		return fmt.Errorf("mesh: coordinate shape %dx%d does not match %dx%d", nr, nc, or, oc)
	}
	m.NodeCoords = X
	m.refreshCellGeometry(nil)
	m.invalidateDerived()
	return nil
}

// applyFlatCellCorrection flags every cell with a negative covolume-edge
// ratio on an eligible edge, builds the corrector for exactly those cells and
// patches their per-half-edge ratios with the corrected values.
func (m *Mesh) applyFlatCellCorrection() error {
	if m.fccType == CorrectionBoundary {
		if err := m.CreateEdges(); err != nil {
			return err
		}
	}
	var fccCells, flatLocal []int
	var fccNodes [][3]int
	regular := make([]int, 0, len(m.CellNodes))
	for c := range m.CellNodes {
		flagged := -1
		for k := 0; k < 3; k++ {
			if m.CERatiosPerHalfEdge[k][c] >= 0 {
				continue
			}
			if m.fccType == CorrectionBoundary && !m.IsBoundaryEdge[m.CellEdges[c][k]] {
				continue
			}
			flagged = k
		}
		if flagged < 0 {
			regular = append(regular, c)
			continue
		}
		fccCells = append(fccCells, c)
		flatLocal = append(flatLocal, flagged)
		fccNodes = append(fccNodes, m.CellNodes[c])
	}

	fcc, err := NewFlatCellCorrector(fccNodes, flatLocal, m.NodeCoords)
	if err != nil {
		return err
	}
	m.fcc = fcc
	m.fccCells = fccCells
	m.regularCells = regular

	corrected := fcc.CERatios()
	for i, c := range fccCells {
		for k := 0; k < 3; k++ {
			m.CERatiosPerHalfEdge[k][c] = corrected[i][k]
		}
	}
	return nil
}

func (m *Mesh) allCellIDs() []int {
	ids := make([]int, len(m.CellNodes))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// regularCellIDs returns the cells not handled by the flat-cell corrector.
func (m *Mesh) regularCellIDs() []int {
	if m.regularCells != nil {
		return m.regularCells
	}
	return m.allCellIDs()
}

// FlatCellCorrection reports the correction mode the mesh was built with.
func (m *Mesh) FlatCellCorrection() CorrectionType { return m.fccType }

// FlatCorrectedCells returns the ids of the cells handled by the flat-cell
// corrector, nil when no correction is active.
func (m *Mesh) FlatCorrectedCells() []int { return m.fccCells }

// MarkSubdomain evaluates the predicate over the node coordinates and caches
// the resulting node mask under the given name. The cache is dropped whenever
// coordinates or topology change.
func (m *Mesh) MarkSubdomain(name string, f func(x []float64) bool) []bool {
	if mask, ok := m.subdomains[name]; ok {
		return mask
	}
	numNodes, _ := m.NodeCoords.Dims()
	mask := make([]bool, numNodes)
	for n := 0; n < numNodes; n++ {
		mask[n] = f(m.NodeCoords.RawRowView(n))
	}
	m.subdomains[name] = mask
	return mask
}
