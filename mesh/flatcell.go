package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/trimesh/geometry"
)

// FlatCellCorrector recomputes the covolume decomposition of cells whose
// circumcenter falls outside the cell across one flagged ("flat") edge. With
// the opposite vertex p0 and the base vertices p1, p2 along the flat edge, p0
// is mirrored across the base line to the ghost point p0', and the two
// isosceles triangles (p1,p0,p0') and (p2,p0,p0') supply non-negative
// covolume-edge ratios that replace the naive, negative decomposition.
//
// The corrector never mutates shared mesh state: every product is an additive
// (index set, value set) contribution consumed by the aggregation layer.
type FlatCellCorrector struct {
	// CellNodes and FlatEdgeLocal describe the corrected subset: node triples
	// and, per cell, the local id of the flat edge (= local id of p0).
	CellNodes     [][3]int
	FlatEdgeLocal []int

	p0Local, p1Local, p2Local []int
	p0ID, p1ID, p2ID          []int
	p0, p1, p2                *mat.Dense
	q                         *mat.Dense // foot of the perpendicular from p0 onto p1-p2
	ghost                     *mat.Dense // p0 mirrored across p1-p2

	// ceRatios1/2 come from the isosceles triangles on the p1 and p2 side:
	// index 0 is the ratio across the mirror edge p0-p0', index 1 the ratio
	// across the matching original edge.
	ceRatios1, ceRatios2 [2][]float64
	ghostEdgeLength2     []float64
}

// NewFlatCellCorrector builds the corrector for the given cell subset. An
// empty subset yields an empty, fully usable corrector. The two ratios each
// isosceles triangle produces for its mirrored base must agree to a relative
// tolerance of 1e-10; a violation marks a numerically ill-formed flat cell
// and fails construction.
func NewFlatCellCorrector(cellNodes [][3]int, flatEdgeLocal []int, nodeCoords *mat.Dense) (*FlatCellCorrector, error) {
	if len(cellNodes) != len(flatEdgeLocal) {
		return nil, fmt.Errorf("flat-cell corrector: %d cells for %d flat-edge ids", len(cellNodes), len(flatEdgeLocal))
	}
	fcc := &FlatCellCorrector{
		CellNodes:     cellNodes,
		FlatEdgeLocal: flatEdgeLocal,
	}
	n := len(cellNodes)
	if n == 0 {
		return fcc, nil
	}

	_, dim := nodeCoords.Dims()
	fcc.p0Local = make([]int, n)
	fcc.p1Local = make([]int, n)
	fcc.p2Local = make([]int, n)
	fcc.p0ID = make([]int, n)
	fcc.p1ID = make([]int, n)
	fcc.p2ID = make([]int, n)
	fcc.p0 = mat.NewDense(n, dim, nil)
	fcc.p1 = mat.NewDense(n, dim, nil)
	fcc.p2 = mat.NewDense(n, dim, nil)
	for i, cn := range cellNodes {
		// Edge k is opposite node k, so p0 is the node opposite the flat edge.
		f := flatEdgeLocal[i]
		fcc.p0Local[i], fcc.p1Local[i], fcc.p2Local[i] = f, (f+1)%3, (f+2)%3
		fcc.p0ID[i] = cn[fcc.p0Local[i]]
		fcc.p1ID[i] = cn[fcc.p1Local[i]]
		fcc.p2ID[i] = cn[fcc.p2Local[i]]
		fcc.p0.SetRow(i, nodeCoords.RawRowView(fcc.p0ID[i]))
		fcc.p1.SetRow(i, nodeCoords.RawRowView(fcc.p1ID[i]))
		fcc.p2.SetRow(i, nodeCoords.RawRowView(fcc.p2ID[i]))
	}

	fcc.mirrorPoints()

	fcc.ghostEdgeLength2 = make([]float64, n)
	for k := 0; k < 2; k++ {
		fcc.ceRatios1[k] = make([]float64, n)
		fcc.ceRatios2[k] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		g := fcc.ghost.RawRowView(i)
		x0 := fcc.p0.RawRowView(i)
		for d := 0; d < dim; d++ {
			fcc.ghostEdgeLength2[i] += (g[d] - x0[d]) * (g[d] - x0[d])
		}
		m1, a1, err := isoscelesCERatios(fcc.p1.RawRowView(i), x0, g)
		if err != nil {
			return nil, fmt.Errorf("flat cell %v: %w", cellNodes[i], err)
		}
		m2, a2, err := isoscelesCERatios(fcc.p2.RawRowView(i), x0, g)
		if err != nil {
			return nil, fmt.Errorf("flat cell %v: %w", cellNodes[i], err)
		}
		fcc.ceRatios1[0][i], fcc.ceRatios1[1][i] = m1, a1
		fcc.ceRatios2[0][i], fcc.ceRatios2[1][i] = m2, a2
	}
	return fcc, nil
}

// mirrorPoints constructs, per cell, the foot q of the perpendicular from p0
// onto p1-p2 and the mirror point p0' = 2q - p0:
//
//	q = p1 + <p0-p1, p2-p1>/<p2-p1, p2-p1> * (p2-p1)
func (fcc *FlatCellCorrector) mirrorPoints() {
	n, dim := fcc.p0.Dims()
	diff01 := mat.NewDense(n, dim, nil)
	diff21 := mat.NewDense(n, dim, nil)
	diff01.Sub(fcc.p0, fcc.p1)
	diff21.Sub(fcc.p2, fcc.p1)
	alpha := geometry.RowDot(diff01, diff21)
	base2 := geometry.RowDot(diff21, diff21)

	fcc.q = mat.NewDense(n, dim, nil)
	fcc.ghost = mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		qRow := fcc.q.RawRowView(i)
		copy(qRow, fcc.p1.RawRowView(i))
		floats.AddScaled(qRow, alpha[i]/base2[i], diff21.RawRowView(i))
		gRow := fcc.ghost.RawRowView(i)
		x0 := fcc.p0.RawRowView(i)
		for d := 0; d < dim; d++ {
			gRow[d] = 2*qRow[d] - x0[d]
		}
	}
}

// isoscelesCERatios computes the two distinct covolume-edge ratios of the
// isosceles triangle (apex, b, c) where |apex-b| == |apex-c|: the ratio
// across the base b-c and the (doubly occurring) ratio across the equal legs.
func isoscelesCERatios(apex, b, c []float64) (base, leg float64, err error) {
	dim := len(apex)
	e0 := make([]float64, dim)
	e1 := make([]float64, dim)
	e2 := make([]float64, dim)
	floats.SubTo(e0, c, b)
	floats.SubTo(e1, apex, c)
	floats.SubTo(e2, b, apex)

	l1, l2 := floats.Dot(e1, e1), floats.Dot(e2, e2)
	if math.Abs(l1-l2) > 1e-12*(l1+l2) {
		return 0, 0, fmt.Errorf("triangle is not isosceles: leg lengths %g and %g", math.Sqrt(l1), math.Sqrt(l2))
	}

	dots := [3]float64{floats.Dot(e1, e2), floats.Dot(e2, e0), floats.Dot(e0, e1)}
	_, ratios := geometry.TriAreaCERatios(dots)
	if math.Abs(ratios[1]-ratios[2]) > 1e-10*math.Abs(ratios[1]) {
		return 0, 0, fmt.Errorf("asymmetric covolume-edge ratios %g and %g across the mirrored base", ratios[1], ratios[2])
	}
	return ratios[0], ratios[1], nil
}

// CERatios returns the corrected covolume-edge ratios of the corrected cells:
// zero along the flat edge, the mirror-derived halves along the other two.
func (fcc *FlatCellCorrector) CERatios() [][3]float64 {
	vals := make([][3]float64, len(fcc.CellNodes))
	for i := range vals {
		vals[i][fcc.p0Local[i]] = 0
		vals[i][fcc.p1Local[i]] = fcc.ceRatios2[1][i]
		vals[i][fcc.p2Local[i]] = fcc.ceRatios1[1][i]
	}
	return vals
}

// ControlVolumes returns the additive control-volume contributions: the flat
// fan splits into p0's piece, seen from both mirror sub-triangles, and the
// pieces adjacent to p1 and p2.
func (fcc *FlatCellCorrector) ControlVolumes() (ids []int, vals []float64) {
	n := len(fcc.CellNodes)
	ids = make([]int, 0, 6*n)
	vals = make([]float64, 0, 6*n)
	for i := 0; i < n; i++ {
		e1 := lengthSq(fcc.p0.RawRowView(i), fcc.p2.RawRowView(i))
		e2 := lengthSq(fcc.p1.RawRowView(i), fcc.p0.RawRowView(i))
		a := 0.25 * fcc.ceRatios1[0][i] * fcc.ghostEdgeLength2[i]
		b := 0.25 * fcc.ceRatios2[0][i] * fcc.ghostEdgeLength2[i]
		c := 0.25 * fcc.ceRatios1[1][i] * e2
		d := 0.25 * fcc.ceRatios2[1][i] * e1
		ids = append(ids, fcc.p0ID[i], fcc.p0ID[i], fcc.p0ID[i], fcc.p1ID[i], fcc.p0ID[i], fcc.p2ID[i])
		vals = append(vals, a, b, c, c, d, d)
	}
	return ids, vals
}

// SurfaceAreas apportions the flat base edge: the stretch between the two
// projections q1, q2 goes to p0, the outer stretches to p1 and p2.
func (fcc *FlatCellCorrector) SurfaceAreas() (ids []int, vals []float64) {
	n := len(fcc.CellNodes)
	ids = make([]int, 0, 4*n)
	vals = make([]float64, 0, 4*n)
	for i := 0; i < n; i++ {
		gl := math.Sqrt(fcc.ghostEdgeLength2[i])
		cv1 := fcc.ceRatios1[0][i] * gl
		cv2 := fcc.ceRatios2[0][i] * gl
		d1 := math.Sqrt(lengthSq(fcc.q.RawRowView(i), fcc.p1.RawRowView(i)))
		d2 := math.Sqrt(lengthSq(fcc.q.RawRowView(i), fcc.p2.RawRowView(i)))
		ids = append(ids, fcc.p0ID[i], fcc.p0ID[i], fcc.p1ID[i], fcc.p2ID[i])
		vals = append(vals, cv1, cv2, d1-cv1, d2-cv2)
	}
	return ids, vals
}

// IntegralX returns the position integrals over the six atomic sub-triangles
// formed by p0, the foot q, the projections q1, q2 of p0's covolume onto the
// base, and the edge midpoints towards p1 and p2. Each integral is the corner
// average times the sub-triangle area, exact for linear integrands.
func (fcc *FlatCellCorrector) IntegralX() (ids []int, vals [][]float64) {
	n := len(fcc.CellNodes)
	if n == 0 {
		return nil, nil
	}
	_, dim := fcc.p0.Dims()
	ids = make([]int, 0, 6*n)
	vals = make([][]float64, 0, 6*n)

	e0 := make([]float64, dim)
	e1 := make([]float64, dim)
	e2 := make([]float64, dim)
	for i := 0; i < n; i++ {
		x0 := fcc.p0.RawRowView(i)
		x1 := fcc.p1.RawRowView(i)
		x2 := fcc.p2.RawRowView(i)
		qi := fcc.q.RawRowView(i)
		floats.SubTo(e0, x2, x1)
		floats.SubTo(e1, x0, x2)
		floats.SubTo(e2, x1, x0)

		// q1 lies on the base with <q1-p1, p0-p1> = 0.5*||p0-p1||^2, so
		// q1 = p1 + 0.5*<e2,e2>/<e0,-e2> * (p2-p1), and symmetrically for q2.
		lambda1 := 0.5 * floats.Dot(e2, e2) / -floats.Dot(e0, e2)
		lambda2 := 0.5 * floats.Dot(e1, e1) / -floats.Dot(e0, e1)
		q1 := make([]float64, dim)
		q2 := make([]float64, dim)
		em1 := make([]float64, dim)
		em2 := make([]float64, dim)
		for d := 0; d < dim; d++ {
			q1[d] = x1[d] + lambda1*(x2[d]-x1[d])
			q2[d] = x2[d] + lambda2*(x1[d]-x2[d])
			em1[d] = 0.5 * (x0[d] + x2[d])
			em2[d] = 0.5 * (x1[d] + x0[d])
		}

		areaP0QQ1 := 0.25 * fcc.ceRatios1[0][i] * fcc.ghostEdgeLength2[i]
		areaP0QQ2 := 0.25 * fcc.ceRatios2[0][i] * fcc.ghostEdgeLength2[i]
		areaQ1Em2 := 0.25 * fcc.ceRatios1[1][i] * floats.Dot(e2, e2)
		areaQ2Em1 := 0.25 * fcc.ceRatios2[1][i] * floats.Dot(e1, e1)

		ids = append(ids, fcc.p0ID[i], fcc.p0ID[i], fcc.p0ID[i], fcc.p1ID[i], fcc.p0ID[i], fcc.p2ID[i])
		vals = append(vals,
			triIntegral(areaP0QQ1, x0, qi, q1),
			triIntegral(areaP0QQ2, x0, qi, q2),
			triIntegral(areaQ1Em2, x0, q1, em2),
			triIntegral(areaQ1Em2, x1, q1, em2),
			triIntegral(areaQ2Em1, x0, q2, em1),
			triIntegral(areaQ2Em1, x2, q2, em1),
		)
	}
	return ids, vals
}

func triIntegral(area float64, a, b, c []float64) []float64 {
	out := make([]float64, len(a))
	for d := range out {
		out[d] = area * (a[d] + b[d] + c[d]) / 3.0
	}
	return out
}

func lengthSq(a, b []float64) float64 {
	var s float64
	for d := range a {
		s += (a[d] - b[d]) * (a[d] - b[d])
	}
	return s
}
