// Package geometry provides the stateless scalar kernels of the mesh core:
// row-wise dot products, triangle areas with covolume-edge ratios, and
// circumcenters. All functions are pure and carry no mesh state.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowDot computes the row-wise dot products of two equally shaped matrices.
// Panics on shape mismatch, matching gonum semantics for malformed operands.
func RowDot(a, b *mat.Dense) []float64 {
	rows, _ := a.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = floats.Dot(a.RawRowView(i), b.RawRowView(i))
	}
	return out
}

// TriAreaCERatios computes the area and the three covolume-edge length ratios
// of a triangle from its pairwise half-edge dot products. eiDotEj[k] pairs the
// two half-edges adjacent to local edge k, i.e. <e_{k+1}, e_{k+2}>.
//
// With half-edge vectors summing to zero,
//
//	area     = 0.5 * sqrt(d0*d1 + d1*d2 + d2*d0)
//	ratio_k  = -d_k / (4 * area)
//
// which is cot(angle opposite edge k) / 2. A ratio is negative exactly when
// the circumcenter projects outside the triangle across edge k.
func TriAreaCERatios(eiDotEj [3]float64) (area float64, ceRatios [3]float64) {
	d0, d1, d2 := eiDotEj[0], eiDotEj[1], eiDotEj[2]
	area = 0.5 * math.Sqrt(d0*d1+d1*d2+d2*d0)
	for k := 0; k < 3; k++ {
		ceRatios[k] = -eiDotEj[k] * 0.25 / area
	}
	return area, ceRatios
}

// Circumcenter computes the circumcenter of the triangle with corners
// p0, p1, p2 from the squared half-edge lengths and pairwise dot products.
// The circumcenter has barycentric weights eiDotEi[k]*eiDotEj[k]; dst receives
// the result and is returned (allocated when nil).
func Circumcenter(p0, p1, p2 []float64, eiDotEi, eiDotEj [3]float64, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p0))
	}
	var alpha [3]float64
	var sum float64
	for k := 0; k < 3; k++ {
		alpha[k] = eiDotEi[k] * eiDotEj[k]
		sum += alpha[k]
	}
	corners := [3][]float64{p0, p1, p2}
	for d := range dst {
		dst[d] = 0
	}
	for k := 0; k < 3; k++ {
		floats.AddScaled(dst, alpha[k]/sum, corners[k])
	}
	return dst
}
