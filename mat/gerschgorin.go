package mat

import (
	"math"
)

// Gerschgorin returns an interval [lower, upper] containing every eigenvalue of the symmetric matrix m.
// Theorem A3, Bounds for the eigenvalues of a matrix, Kenneth R. Garren.
func Gerschgorin(m *CSR) (float64, float64) {
	if m.rows == 0 {
		return 0, 0
	}

	lower, upper := math.Inf(1), math.Inf(-1)
	for i := range m.rows {
		var center, radius float64
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			if m.indices[p] == i {
				center = m.data[p]
			} else {
				radius += math.Abs(m.data[p])
			}
		}
		lower = min(lower, center-radius)
		upper = max(upper, center+radius)
	}
	return lower, upper
}
