package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestScatterAddAccumulates(t *testing.T) {
	target := make([]float64, 4)
	err := ScatterAdd(target, []int{0, 2, 2, 3, 0}, []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	// Repeated indices must sum, never overwrite.
	assert.Equal(t, []float64{6, 0, 5, 4}, target)
}

func TestScatterAddErrors(t *testing.T) {
	target := make([]float64, 2)
	assert.Error(t, ScatterAdd(target, []int{0}, []float64{1, 2}))
	assert.Error(t, ScatterAdd(target, []int{2}, []float64{1}))
	assert.Error(t, ScatterAdd(target, []int{-1}, []float64{1}))
}

func TestScatterAddRows(t *testing.T) {
	target := mat.NewDense(3, 2, nil)
	err := ScatterAddRows(target,
		[]int{1, 1, 0},
		[][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, target.RawRowView(0))
	assert.Equal(t, []float64{4, 6}, target.RawRowView(1))
	assert.Equal(t, []float64{0, 0}, target.RawRowView(2))
}

func TestScatterAddRowsErrors(t *testing.T) {
	target := mat.NewDense(2, 2, nil)
	assert.Error(t, ScatterAddRows(target, []int{0}, [][]float64{{1, 2, 3}}))
	assert.Error(t, ScatterAddRows(target, []int{5}, [][]float64{{1, 2}}))
}
