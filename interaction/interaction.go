// Package interaction computes the two-body matrix elements of the Coulomb interaction
// projected to the lowest Landau level on a torus.
//
// The matrix element V(k, m) couples orbitals whose momenta differ by k and m,
// and is a lattice sum over reciprocal vectors
//
//	V(k, m) = 1/Ns Σ_{nx, ny≥1} 2/q exp(-q²/2) cos(2π m ny / Ns),
//	q = sqrt((2π(Ns nx + k)/a)² + (2π ny/b)²),
//
// on a torus of lengths a and b with a*b = 2π Ns.
//
// The sum is truncated at |nx| ≤ cutoff and ny ≤ cutoff.
// A dropped term has q ≥ min(2π(cutoff+1)/b, 2π Ns cutoff/a) =: qc, so the truncation error is of order exp(-qc²/2)/qc.
// With DefaultCutoff, Ns = 32 and a = b this is about 1e-111, and for an aspect ratio of 0.1 about 1e-12.
package interaction

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultCutoff is the default truncation of the reciprocal lattice sum.
const DefaultCutoff = 50

// Torus holds the lengths of the two periods of the torus.
type Torus struct {
	A float64
	B float64
}

// NewTorus returns the torus of ns flux quanta whose aspect ratio A/B is ratio.
func NewTorus(ns int, ratio float64) (Torus, error) {
	if ns < 1 || !(ratio > 0) || math.IsInf(ratio, 0) {
		return Torus{}, errors.Errorf("%d %f", ns, ratio)
	}
	a := math.Sqrt(ratio * 2 * math.Pi * float64(ns))
	return Torus{A: a, B: 2 * math.Pi * float64(ns) / a}, nil
}

// V returns the interaction matrix element for momentum transfer k and channel m.
func V(k, m int, t Torus, ns, cutoff int) float64 {
	var v float64
	for nx := -cutoff; nx <= cutoff; nx++ {
		qx := 2 * math.Pi * float64(ns*nx+k) / t.A
		for ny := 1; ny <= cutoff; ny++ {
			qy := 2 * math.Pi * float64(ny) / t.B
			q2 := qx*qx + qy*qy
			q := math.Sqrt(q2)
			v += 2 / q * math.Exp(-0.5*q2) * math.Cos(2*math.Pi*float64(m*ny)/float64(ns))
		}
	}
	return v / float64(ns)
}

// Table holds the matrix elements needed to build a Hamiltonian.
// V0[k] is V(k, 0) for 0 ≤ k < Ns/2, the electrostatic part.
// Vkm[k][m] is V(k, m) for 0 < m < k < Ns/2, the pair hopping part, and is zero elsewhere.
type Table struct {
	Ns  int
	V0  []float64
	Vkm [][]float64
}

// NewTable evaluates every matrix element needed for ns orbitals per layer.
func NewTable(ns int, t Torus, cutoff int) (*Table, error) {
	if cutoff < 1 {
		return nil, errors.Errorf("%d", cutoff)
	}
	tab := ZeroTable(ns)
	for k := range tab.V0 {
		tab.V0[k] = V(k, 0, t, ns, cutoff)
	}
	for k := range tab.Vkm {
		for m := 1; m < k; m++ {
			tab.Vkm[k][m] = V(k, m, t, ns, cutoff)
		}
	}
	return tab, nil
}

// ZeroTable returns a table of ns orbitals whose matrix elements are all zero.
func ZeroTable(ns int) *Table {
	half := ns / 2
	tab := &Table{Ns: ns, V0: make([]float64, half), Vkm: make([][]float64, half)}
	for k := range tab.Vkm {
		tab.Vkm[k] = make([]float64, half)
	}
	return tab
}
