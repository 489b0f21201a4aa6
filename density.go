package fqh

import (
	"github.com/pkg/errors"

	"github.com/fumin/fqh/basis"
)

// Density returns the expected occupation of each orbital in the state vec, whose basis is states.
// orbitals must cover every occupied orbital, so for a bilayer it is twice the number of orbitals per layer.
func Density(vec []float64, states []basis.State, orbitals int) ([]float64, error) {
	if len(vec) != len(states) {
		return nil, errors.Errorf("%d %d", len(vec), len(states))
	}
	n := make([]float64, orbitals)
	for i, s := range states {
		w := vec[i] * vec[i]
		for _, p := range s {
			if p < 0 || p >= orbitals {
				return nil, errors.Errorf("orbital %d of state %d out of %d", p, i, orbitals)
			}
			n[p] += w
		}
	}
	return n, nil
}
