package mesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// rightTriangleMesh is the single cell (0,0), (1,0), (0,1).
func rightTriangleMesh(t *testing.T) *Mesh {
	t.Helper()
	X := mat.NewDense(3, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
	})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}}, Config{})
	require.NoError(t, err)
	return m
}

// unitSquareMesh splits the unit square along the diagonal 0-2.
func unitSquareMesh(t *testing.T) *Mesh {
	t.Helper()
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0,
		1, 1,
		0, 1,
	})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}, {0, 2, 3}}, Config{})
	require.NoError(t, err)
	return m
}

// gridMesh triangulates an nx x ny unit-spaced node grid, every quad split
// along its lower-left to upper-right diagonal.
func gridMesh(t *testing.T, nx, ny int) *Mesh {
	t.Helper()
	coords := make([]float64, 0, 2*nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			coords = append(coords, float64(i), float64(j))
		}
	}
	var cells [][3]int
	for j := 0; j < ny-1; j++ {
		for i := 0; i < nx-1; i++ {
			n00 := j*nx + i
			n10 := n00 + 1
			n01 := n00 + nx
			n11 := n01 + 1
			cells = append(cells, [3]int{n00, n10, n11}, [3]int{n00, n11, n01})
		}
	}
	m, err := NewMesh(mat.NewDense(nx*ny, 2, coords), cells, Config{})
	require.NoError(t, err)
	return m
}

func TestNewMeshValidation(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})

	_, err := NewMesh(nil, [][3]int{{0, 1, 2}}, Config{})
	assert.Error(t, err)

	_, err = NewMesh(X, nil, Config{})
	assert.Error(t, err)

	_, err = NewMesh(mat.NewDense(3, 4, nil), [][3]int{{0, 1, 2}}, Config{})
	assert.Error(t, err)

	// Node id out of range.
	_, err = NewMesh(X, [][3]int{{0, 1, 3}}, Config{})
	assert.Error(t, err)

	// Orphan node 3.
	X4 := mat.NewDense(4, 2, []float64{0, 0, 1, 0, 0, 1, 5, 5})
	_, err = NewMesh(X4, [][3]int{{0, 1, 2}}, Config{})
	assert.Error(t, err)
}

func TestNewMeshSortCells(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	m, err := NewMesh(X, [][3]int{{3, 2, 0}, {2, 1, 0}}, Config{SortCells: true})
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{0, 1, 2}, {0, 2, 3}}, m.CellNodes)
}

func TestRightTriangleQuantities(t *testing.T) {
	m := rightTriangleMesh(t)

	assert.InDelta(t, 0.5, m.CellVolumes[0], 1e-14)

	// Right angle at node 0: hypotenuse ratio zero, legs cot(pi/4)/2 each.
	ratios := m.CERatios()
	assert.InDelta(t, 0.0, ratios[0][0], 1e-14)
	assert.InDelta(t, 0.5, ratios[1][0], 1e-14)
	assert.InDelta(t, 0.5, ratios[2][0], 1e-14)

	cv, err := m.ControlVolumes()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, cv[0], 1e-14)
	assert.InDelta(t, 0.125, cv[1], 1e-14)
	assert.InDelta(t, 0.125, cv[2], 1e-14)

	sa, err := m.SurfaceAreas()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sa[0], 1e-14)
	assert.InDelta(t, 0.5+math.Sqrt2/2, sa[1], 1e-14)
	assert.InDelta(t, 0.5+math.Sqrt2/2, sa[2], 1e-14)

	angles := m.Angles()
	assert.InDelta(t, math.Pi/2, angles[0][0], 1e-14)
	assert.InDelta(t, math.Pi/4, angles[1][0], 1e-14)
	assert.InDelta(t, math.Pi/4, angles[2][0], 1e-14)

	centroids := m.CellCentroids()
	assert.InDelta(t, 1.0/3, centroids.At(0, 0), 1e-14)
	assert.InDelta(t, 1.0/3, centroids.At(0, 1), 1e-14)

	cc, err := m.CellCircumcenters()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cc.At(0, 0), 1e-14)
	assert.InDelta(t, 0.5, cc.At(0, 1), 1e-14)

	// Euler's relation 2*r <= R, with equality only for equilateral cells.
	r := m.Inradius()[0]
	R := m.Circumradius()[0]
	assert.InDelta(t, 1/(2+math.Sqrt2), r, 1e-14)
	assert.InDelta(t, math.Sqrt2/2, R, 1e-14)
	assert.InDelta(t, 2*r/R, m.Quality()[0], 1e-14)
}

func TestEquilateralQuality(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0.5, math.Sqrt(3) / 2})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}}, Config{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.Quality()[0], 1e-13)
}

func TestControlVolumesSquare(t *testing.T) {
	m := unitSquareMesh(t)
	cv, err := m.ControlVolumes()
	require.NoError(t, err)
	for n := 0; n < 4; n++ {
		assert.InDelta(t, 0.25, cv[n], 1e-14, "node %d", n)
	}
}

func TestControlVolumeConservation(t *testing.T) {
	m := gridMesh(t, 4, 3)
	cv, err := m.ControlVolumes()
	require.NoError(t, err)

	var total, cells float64
	for _, v := range cv {
		total += v
	}
	for _, a := range m.CellVolumes {
		cells += a
	}
	assert.InDelta(t, cells, total, 1e-12)
	assert.InDelta(t, 6.0, cells, 1e-12)
}

func TestControlVolumeCentroidConservation(t *testing.T) {
	m := rightTriangleMesh(t)
	cv, err := m.ControlVolumes()
	require.NoError(t, err)
	cvc, err := m.ControlVolumeCentroids()
	require.NoError(t, err)

	// The volume-weighted centroids must add up to the first moment of the
	// whole cell, area * barycenter.
	var mx, my float64
	for n := 0; n < 3; n++ {
		mx += cv[n] * cvc.At(n, 0)
		my += cv[n] * cvc.At(n, 1)
	}
	assert.InDelta(t, 0.5/3, mx, 1e-13)
	assert.InDelta(t, 0.5/3, my, 1e-13)
}

func TestInteriorCERatiosSquare(t *testing.T) {
	m := unitSquareMesh(t)
	ratios, err := m.InteriorCERatios()
	require.NoError(t, err)
	require.Len(t, ratios, 1)
	// The diagonal is opposite the right angles of both cells.
	assert.InDelta(t, 0.0, ratios[0], 1e-14)

	n, err := m.NumDelaunayViolations()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSignedTriAreas(t *testing.T) {
	m := unitSquareMesh(t)
	signed, err := m.SignedTriAreas()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, signed[0], 1e-14)
	assert.InDelta(t, 0.5, signed[1], 1e-14)

	// Clockwise winding flips the sign.
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	cw, err := NewMesh(X, [][3]int{{0, 2, 1}}, Config{})
	require.NoError(t, err)
	signed, err = cw.SignedTriAreas()
	require.NoError(t, err)
	assert.InDelta(t, -0.5, signed[0], 1e-14)
}

func TestSignedTriAreasRejects3D(t *testing.T) {
	X := mat.NewDense(3, 3, []float64{0, 0, 0, 1, 0, 0, 0, 1, 0})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}}, Config{})
	require.NoError(t, err)
	_, err = m.SignedTriAreas()
	assert.Error(t, err)
}

func TestUpdateNodeCoordinates(t *testing.T) {
	m := rightTriangleMesh(t)
	_, err := m.ControlVolumes()
	require.NoError(t, err)

	// Scaling all coordinates by two scales areas by four.
	X := mat.NewDense(3, 2, []float64{0, 0, 2, 0, 0, 2})
	require.NoError(t, m.UpdateNodeCoordinates(X))
	assert.InDelta(t, 2.0, m.CellVolumes[0], 1e-14)

	cv, err := m.ControlVolumes()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cv[0], 1e-14)
	assert.InDelta(t, 0.5, cv[1], 1e-14)
	assert.InDelta(t, 0.5, cv[2], 1e-14)

	assert.Error(t, m.UpdateNodeCoordinates(mat.NewDense(4, 2, nil)))
}

func TestUpdateNodeCoordinatesForbiddenWithCorrection(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0.5, 0.3})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}}, Config{FlatCellCorrection: CorrectionBoundary})
	require.NoError(t, err)
	assert.Error(t, m.UpdateNodeCoordinates(X))
}

func TestMarkSubdomain(t *testing.T) {
	m := unitSquareMesh(t)
	left := m.MarkSubdomain("left", func(x []float64) bool { return x[0] < 0.5 })
	assert.Equal(t, []bool{true, false, false, true}, left)

	// The mask is cached under its name.
	again := m.MarkSubdomain("left", func(x []float64) bool { return false })
	assert.Equal(t, left, again)
}

func TestCellCurl(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
	})
	m, err := NewMesh(X, [][3]int{{0, 1, 2}, {0, 2, 3}}, Config{})
	require.NoError(t, err)

	// field = (-y, x, 0) has constant curl (0, 0, 2); the edge-midpoint
	// quadrature is exact for linear fields.
	field := mat.NewDense(4, 3, nil)
	for n := 0; n < 4; n++ {
		field.Set(n, 0, -X.At(n, 1))
		field.Set(n, 1, X.At(n, 0))
	}
	curl, err := m.CellCurl(field)
	require.NoError(t, err)
	for c := 0; c < 2; c++ {
		assert.InDelta(t, 0.0, curl.At(c, 0), 1e-13)
		assert.InDelta(t, 0.0, curl.At(c, 1), 1e-13)
		assert.InDelta(t, 2.0, curl.At(c, 2), 1e-13)
	}

	_, err = m.CellCurl(mat.NewDense(3, 3, nil))
	assert.Error(t, err)
}

func TestCellCurlRequires3D(t *testing.T) {
	m := unitSquareMesh(t)
	_, err := m.CellCurl(mat.NewDense(4, 3, nil))
	assert.Error(t, err)
}

func TestFacePartitionsAndEdgeLengths(t *testing.T) {
	m := rightTriangleMesh(t)
	el := m.EdgeLengths()
	assert.InDelta(t, math.Sqrt2, el[0][0], 1e-14)
	assert.InDelta(t, 1.0, el[1][0], 1e-14)
	assert.InDelta(t, 1.0, el[2][0], 1e-14)

	fp := m.FacePartitions()
	for side := 0; side < 2; side++ {
		for k := 0; k < 3; k++ {
			assert.InDelta(t, 0.5*el[k][0], fp[side][k][0], 1e-14)
		}
	}
}
