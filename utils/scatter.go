package utils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ScatterAdd accumulates vals into target at the given indices. When an index
// appears more than once, the contributions are summed, never overwritten.
func ScatterAdd(target []float64, indices []int, vals []float64) error {
	if len(indices) != len(vals) {
		return fmt.Errorf("scatter-add: %d indices for %d values", len(indices), len(vals))
	}
	for i, idx := range indices {
		if idx < 0 || idx >= len(target) {
			return fmt.Errorf("scatter-add: index %d out of range [0,%d)", idx, len(target))
		}
		target[idx] += vals[i]
	}
	return nil
}

// ScatterAddRows accumulates the value rows into the rows of target, summing
// on repeated indices. Every value row must have the same width as target.
func ScatterAddRows(target *mat.Dense, indices []int, vals [][]float64) error {
	if len(indices) != len(vals) {
		return fmt.Errorf("scatter-add: %d indices for %d rows", len(indices), len(vals))
	}
	rows, cols := target.Dims()
	for i, idx := range indices {
		if idx < 0 || idx >= rows {
			return fmt.Errorf("scatter-add: index %d out of range [0,%d)", idx, rows)
		}
		if len(vals[i]) != cols {
			return fmt.Errorf("scatter-add: row %d has %d components, target has %d", i, len(vals[i]), cols)
		}
		floats.Add(target.RawRowView(idx), vals[i])
	}
	return nil
}
