package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/trimesh/geometry"
	"github.com/notargets/trimesh/utils"
)

// CERatios returns the covolume-edge ratio of every half-edge, indexed
// [local edge][cell]. Flat-cell corrected cells carry their corrected values.
func (m *Mesh) CERatios() [3][]float64 {
	return m.CERatiosPerHalfEdge
}

// InteriorCERatios returns the aggregated covolume-edge ratio of every
// interior edge: the sum of the ratios contributed by its two half-edges, in
// the order of InteriorEdgeGIDs.
func (m *Mesh) InteriorCERatios() ([]float64, error) {
	if m.interiorCERatios == nil {
		if err := m.computeEdgesCells(); err != nil {
			return nil, err
		}
		numCells := len(m.CellNodes)
		ids := make([]int, 0, 3*numCells)
		vals := make([]float64, 0, 3*numCells)
		for k := 0; k < 3; k++ {
			for c := 0; c < numCells; c++ {
				ids = append(ids, m.CellEdges[c][k])
				vals = append(vals, m.CERatiosPerHalfEdge[k][c])
			}
		}
		perEdge := make([]float64, len(m.EdgeNodes))
		if err := utils.ScatterAdd(perEdge, ids, vals); err != nil {
			return nil, err
		}
		out := make([]float64, len(m.interiorEdgeGIDs))
		for i, gid := range m.interiorEdgeGIDs {
			out[i] = perEdge[gid]
		}
		m.interiorCERatios = out
	}
	return m.interiorCERatios, nil
}

// NumDelaunayViolations counts the interior edges whose aggregated
// covolume-edge ratio is negative.
func (m *Mesh) NumDelaunayViolations() (int, error) {
	ratios, err := m.InteriorCERatios()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range ratios {
		if r < 0 {
			n++
		}
	}
	return n, nil
}

// CellPartitions returns the control-volume contribution associated with each
// half-edge: 0.25 * squared-edge-length * covolume-edge ratio, the area of
// one of the two right triangles the edge's covolume cuts out of the cell.
func (m *Mesh) CellPartitions() [3][]float64 {
	if m.cellPartitions[0] == nil {
		numCells := len(m.CellNodes)
		for k := 0; k < 3; k++ {
			cp := make([]float64, numCells)
			for c := 0; c < numCells; c++ {
				cp[c] = 0.25 * m.EiDotEi[k][c] * m.CERatiosPerHalfEdge[k][c]
			}
			m.cellPartitions[k] = cp
		}
	}
	return m.cellPartitions
}

// ControlVolumes returns the Voronoi-like area associated with each node,
// assembled by scatter-adding the cell partitions of the regular cells and,
// when active, the flat-cell corrector's contributions.
func (m *Mesh) ControlVolumes() ([]float64, error) {
	if m.controlVolumes == nil {
		cp := m.CellPartitions()
		numCells := len(m.CellNodes)
		ids := make([]int, 0, 6*numCells)
		vals := make([]float64, 0, 6*numCells)
		for _, c := range m.regularCellIDs() {
			cn := m.CellNodes[c]
			for k := 0; k < 3; k++ {
				// The partition of edge k belongs to its two endpoints.
				ids = append(ids, cn[localIdx[k][0]], cn[localIdx[k][1]])
				vals = append(vals, cp[k][c], cp[k][c])
			}
		}
		if m.fcc != nil {
			fids, fvals := m.fcc.ControlVolumes()
			ids = append(ids, fids...)
			vals = append(vals, fvals...)
		}
		numNodes, _ := m.NodeCoords.Dims()
		cv := make([]float64, numNodes)
		if err := utils.ScatterAdd(cv, ids, vals); err != nil {
			return nil, err
		}
		m.controlVolumes = cv
	}
	return m.controlVolumes, nil
}

// integralX computes, for the given cells, the integral of the position over
// every atomic right triangle cornered by a node, an edge midpoint and the
// circumcenter. The integral of a linear function over a triangle is the
// average of its corner values times the area.
func (m *Mesh) integralX(cellIDs []int) (ids []int, vals [][]float64, err error) {
	cp := m.CellPartitions()
	cc, err := m.CellCircumcenters()
	if err != nil {
		return nil, nil, err
	}
	_, dim := m.NodeCoords.Dims()
	for _, c := range cellIDs {
		cn := m.CellNodes[c]
		ccRow := cc.RawRowView(c)
		for k := 0; k < 3; k++ {
			a := m.NodeCoords.RawRowView(cn[localIdx[k][0]])
			b := m.NodeCoords.RawRowView(cn[localIdx[k][1]])
			for j := 0; j < 2; j++ {
				corner := m.NodeCoords.RawRowView(cn[localIdx[k][j]])
				contrib := make([]float64, dim)
				for d := 0; d < dim; d++ {
					mid := 0.5 * (a[d] + b[d])
					contrib[d] = cp[k][c] * (corner[d] + mid + ccRow[d]) / 3.0
				}
				ids = append(ids, cn[localIdx[k][j]])
				vals = append(vals, contrib)
			}
		}
	}
	return ids, vals, nil
}

// ControlVolumeCentroids returns, per node, the centroid of its Voronoi-like
// control volume: the accumulated position integral divided by the control
// volume. A node with a vanishing control volume makes the centroid
// undefined and is reported as an error.
func (m *Mesh) ControlVolumeCentroids() (*mat.Dense, error) {
	if m.cvCentroids == nil {
		ids, vals, err := m.integralX(m.regularCellIDs())
		if err != nil {
			return nil, err
		}
		if m.fcc != nil {
			fids, fvals := m.fcc.IntegralX()
			ids = append(ids, fids...)
			vals = append(vals, fvals...)
		}
		numNodes, dim := m.NodeCoords.Dims()
		acc := mat.NewDense(numNodes, dim, nil)
		if err := utils.ScatterAddRows(acc, ids, vals); err != nil {
			return nil, err
		}
		cv, err := m.ControlVolumes()
		if err != nil {
			return nil, err
		}
		scale := 0.0
		for _, v := range cv {
			scale = math.Max(scale, math.Abs(v))
		}
		for n := 0; n < numNodes; n++ {
			if math.Abs(cv[n]) <= 1e-14*scale {
				return nil, fmt.Errorf("mesh: node %d has a vanishing control volume, centroid undefined", n)
			}
			floats.Scale(1/cv[n], acc.RawRowView(n))
		}
		m.cvCentroids = acc
	}
	return m.cvCentroids, nil
}

// SurfaceAreas returns, per node, the boundary surface measure: half of each
// adjacent boundary edge, plus the corrector's reapportioned base edges for
// flat boundary cells. Interior nodes get zero.
func (m *Mesh) SurfaceAreas() ([]float64, error) {
	if m.surfaceAreas == nil {
		if err := m.CreateEdges(); err != nil {
			return nil, err
		}
		var ids []int
		var vals []float64
		for _, c := range m.regularCellIDs() {
			cn := m.CellNodes[c]
			for k := 0; k < 3; k++ {
				if !m.IsBoundaryEdge[m.CellEdges[c][k]] {
					continue
				}
				half := 0.5 * math.Sqrt(m.EiDotEi[k][c])
				ids = append(ids, cn[localIdx[k][0]], cn[localIdx[k][1]])
				vals = append(vals, half, half)
			}
		}
		if m.fcc != nil {
			fids, fvals := m.fcc.SurfaceAreas()
			ids = append(ids, fids...)
			vals = append(vals, fvals...)
		}
		numNodes, _ := m.NodeCoords.Dims()
		sa := make([]float64, numNodes)
		if err := utils.ScatterAdd(sa, ids, vals); err != nil {
			return nil, err
		}
		m.surfaceAreas = sa
	}
	return m.surfaceAreas, nil
}

// CellCentroids returns the barycenter of every cell.
func (m *Mesh) CellCentroids() *mat.Dense {
	if m.cellCentroids == nil {
		numCells := len(m.CellNodes)
		_, dim := m.NodeCoords.Dims()
		out := mat.NewDense(numCells, dim, nil)
		for c, cn := range m.CellNodes {
			row := out.RawRowView(c)
			for _, n := range cn {
				floats.Add(row, m.NodeCoords.RawRowView(n))
			}
			floats.Scale(1.0/3.0, row)
		}
		m.cellCentroids = out
	}
	return m.cellCentroids
}

// CellCircumcenters returns the circumcenter of every cell.
func (m *Mesh) CellCircumcenters() (*mat.Dense, error) {
	if m.cellCircumcenters == nil {
		numCells := len(m.CellNodes)
		_, dim := m.NodeCoords.Dims()
		out := mat.NewDense(numCells, dim, nil)
		for c, cn := range m.CellNodes {
			var ei, ej [3]float64
			for k := 0; k < 3; k++ {
				ei[k] = m.EiDotEi[k][c]
				ej[k] = m.EiDotEj[k][c]
			}
			geometry.Circumcenter(
				m.NodeCoords.RawRowView(cn[0]),
				m.NodeCoords.RawRowView(cn[1]),
				m.NodeCoords.RawRowView(cn[2]),
				ei, ej, out.RawRowView(c))
		}
		m.cellCircumcenters = out
	}
	return m.cellCircumcenters, nil
}

// EdgeLengths returns the length of every half-edge, indexed
// [local edge][cell].
func (m *Mesh) EdgeLengths() [3][]float64 {
	if m.edgeLengths[0] == nil {
		numCells := len(m.CellNodes)
		for k := 0; k < 3; k++ {
			el := make([]float64, numCells)
			for c := 0; c < numCells; c++ {
				el[c] = math.Sqrt(m.EiDotEi[k][c])
			}
			m.edgeLengths[k] = el
		}
	}
	return m.edgeLengths
}

// FacePartitions returns the split of every half-edge between its two
// endpoints; for triangle meshes this is simply half the edge length to each.
func (m *Mesh) FacePartitions() [2][3][]float64 {
	el := m.EdgeLengths()
	var out [2][3][]float64
	for side := 0; side < 2; side++ {
		for k := 0; k < 3; k++ {
			half := make([]float64, len(el[k]))
			for c := range half {
				half[c] = 0.5 * el[k][c]
			}
			out[side][k] = half
		}
	}
	return out
}

// Inradius returns the incircle radius of every cell.
func (m *Mesh) Inradius() []float64 {
	el := m.EdgeLengths()
	out := make([]float64, len(m.CellVolumes))
	for c := range out {
		out[c] = 2 * m.CellVolumes[c] / (el[0][c] + el[1][c] + el[2][c])
	}
	return out
}

// Circumradius returns the circumcircle radius of every cell.
func (m *Mesh) Circumradius() []float64 {
	el := m.EdgeLengths()
	out := make([]float64, len(m.CellVolumes))
	for c := range out {
		a, b, cc := el[0][c], el[1][c], el[2][c]
		out[c] = a * b * cc / math.Sqrt((a+b+cc)*(-a+b+cc)*(a-b+cc)*(a+b-cc))
	}
	return out
}

// Quality returns 2*inradius/circumradius per cell: 1 for equilateral cells,
// approaching 0 as a cell degenerates.
func (m *Mesh) Quality() []float64 {
	el := m.EdgeLengths()
	out := make([]float64, len(m.CellVolumes))
	for c := range out {
		a, b, cc := el[0][c], el[1][c], el[2][c]
		out[c] = (-a + b + cc) * (a - b + cc) * (a + b - cc) / (a * b * cc)
	}
	return out
}

// Angles returns the interior angle opposite each local edge, indexed
// [local edge][cell]. The cosine of the angle at node k is the negated
// normalized dot product of the two half-edges adjacent to edge k.
func (m *Mesh) Angles() [3][]float64 {
	el := m.EdgeLengths()
	numCells := len(m.CellNodes)
	var out [3][]float64
	for k := 0; k < 3; k++ {
		ang := make([]float64, numCells)
		for c := 0; c < numCells; c++ {
			ang[c] = math.Acos(-m.EiDotEj[k][c] / (el[(k+1)%3][c] * el[(k+2)%3][c]))
		}
		out[k] = ang
	}
	return out
}

// SignedTriAreas returns the signed area of every cell. Only meaningful for
// 2D coordinates.
func (m *Mesh) SignedTriAreas() ([]float64, error) {
	if _, dim := m.NodeCoords.Dims(); dim != 2 {
		return nil, fmt.Errorf("mesh: signed areas only make sense for triangles in 2D, coordinates are %dD", dim)
	}
	if m.signedTriAreas == nil {
		out := make([]float64, len(m.CellNodes))
		for c := range out {
			out[c] = m.signedAreaOfCell(c)
		}
		m.signedTriAreas = out
	}
	return m.signedTriAreas, nil
}

func (m *Mesh) signedAreaOfCell(c int) float64 {
	p0 := m.NodeCoords.RawRowView(m.CellNodes[c][0])
	p1 := m.NodeCoords.RawRowView(m.CellNodes[c][1])
	p2 := m.NodeCoords.RawRowView(m.CellNodes[c][2])
	return (p2[0]*(p0[1]-p1[1]) + p0[0]*(p1[1]-p2[1]) + p1[0]*(p2[1]-p0[1])) / 2
}

// CellCurl approximates the curl of a node-based vector field, producing one
// cell-based vector per cell. The circulation integral uses the edge-midpoint
// value of the field, approximated by averaging its endpoint values.
// Requires 3D coordinates and a numNodes x 3 field.
func (m *Mesh) CellCurl(field *mat.Dense) (*mat.Dense, error) {
	numNodes, dim := m.NodeCoords.Dims()
	if dim != 3 {
		return nil, fmt.Errorf("mesh: curl requires 3D coordinates, have %dD", dim)
	}
	fr, fc := field.Dims()
	if fr != numNodes || fc != 3 {
		return nil, fmt.Errorf("mesh: field shape %dx%d does not match %dx3", fr, fc, numNodes)
	}
	numCells := len(m.CellNodes)
	out := mat.NewDense(numCells, 3, nil)
	for c, cn := range m.CellNodes {
		var circulation float64
		for k := 0; k < 3; k++ {
			e := m.HalfEdgeCoords[k].RawRowView(c)
			fa := field.RawRowView(cn[localIdx[k][0]])
			fb := field.RawRowView(cn[localIdx[k][1]])
			for d := 0; d < 3; d++ {
				circulation += e[d] * 0.5 * (fa[d] + fb[d])
			}
		}
		// z = e0 x e1 has norm 2*area, so curl = z * 0.5 * circulation / area^2.
		e0 := m.HalfEdgeCoords[0].RawRowView(c)
		e1 := m.HalfEdgeCoords[1].RawRowView(c)
		z := [3]float64{
			e0[1]*e1[2] - e0[2]*e1[1],
			e0[2]*e1[0] - e0[0]*e1[2],
			e0[0]*e1[1] - e0[1]*e1[0],
		}
		s := 0.5 * circulation / (m.CellVolumes[c] * m.CellVolumes[c])
		out.SetRow(c, []float64{z[0] * s, z[1] * s, z[2] * s})
	}
	return out, nil
}
