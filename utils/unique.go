package utils

import "sort"

// UniqueRows deduplicates node-pair rows. It returns the unique rows in
// lexicographic order, for each input row the index of its unique
// representative, and the multiplicity of each unique row. The caller is
// expected to canonicalize each pair (smaller node first) beforehand.
func UniqueRows(rows [][2]int) (unique [][2]int, inverse []int, counts []int) {
	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(a, b int) bool {
		ra, rb := rows[perm[a]], rows[perm[b]]
		if ra[0] != rb[0] {
			return ra[0] < rb[0]
		}
		return ra[1] < rb[1]
	})

	inverse = make([]int, len(rows))
	for _, p := range perm {
		if len(unique) == 0 || rows[p] != unique[len(unique)-1] {
			unique = append(unique, rows[p])
			counts = append(counts, 0)
		}
		inverse[p] = len(unique) - 1
		counts[len(counts)-1]++
	}
	return unique, inverse, counts
}
