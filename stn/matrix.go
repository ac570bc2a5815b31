package stn

import "github.com/katalvlaran/lvlath/matrix"

// boundMatrix is a dense, row-major distance buffer satisfying the
// read side of lvlath/matrix.Matrix (At/Rows/Cols), used to represent
// the STN's propagated distance graph for Floyd-Warshall consistency
// checking (SPEC_FULL.md §11, DESIGN.md "STN" entry). lvlath's own
// retrieved usage (other_examples' TSP branch-and-bound) only shows
// the interface being consumed via At/Rows/Cols, not constructed, so
// this type provides its own construction/mutation rather than
// guessing at an unattested lvlath constructor name.
type boundMatrix struct {
	n    int
	data []float64
}

func newBoundMatrix(n int, fill float64) *boundMatrix {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = fill
	}
	return &boundMatrix{n: n, data: data}
}

// At satisfies matrix.Matrix's read accessor.
func (m *boundMatrix) At(i, j int) (float64, error) {
	return m.data[i*m.n+j], nil
}

// Set mutates the value at (i, j); not part of matrix.Matrix, but
// needed internally to run Floyd-Warshall over the buffer.
func (m *boundMatrix) Set(i, j int, v float64) {
	m.data[i*m.n+j] = v
}

// Rows satisfies matrix.Matrix.
func (m *boundMatrix) Rows() int { return m.n }

// Cols satisfies matrix.Matrix.
func (m *boundMatrix) Cols() int { return m.n }

// asLvlathMatrix exposes the buffer through lvlath's own Matrix
// interface type, so callers that accept matrix.Matrix (e.g. a future
// lvlath-provided analysis routine) can consume this STN's distance
// graph without the stn package itself depending on such a routine
// existing today.
func (m *boundMatrix) asLvlathMatrix() matrix.Matrix { return m }
