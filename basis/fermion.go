package basis

import (
	"slices"
)

// Sign returns the sign picked up when c_i^† c_j acts on s.
// It counts the occupied orbitals between i and j, and is only meaningful when j is occupied and i is empty.
func Sign(i, j int, s State) int {
	sgn := 1
	switch {
	case i < j:
		for _, p := range s {
			if p >= i && p < j {
				sgn = -sgn
			}
		}
	default:
		// The range [j, i) contains j itself, which the extra flip compensates.
		for _, p := range s {
			if p >= j && p < i {
				sgn = -sgn
			}
		}
		sgn = -sgn
	}
	return sgn
}

// Remove returns a copy of s without orbital p.
func Remove(s State, p int) State {
	out := make(State, 0, len(s))
	for _, q := range s {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

// Insert returns a sorted copy of s with orbital p added.
func Insert(s State, p int) State {
	out := make(State, 0, len(s)+1)
	out = append(out, s...)
	i, found := slices.BinarySearch(out, p)
	if found {
		return out
	}
	return slices.Insert(out, i, p)
}

// Hop applies c_i^† c_j to s.
// ok is false if j is empty or i is already occupied, in which case the result is zero.
func Hop(s State, i, j int) (State, int, bool) {
	if !s.Has(j) {
		return nil, 0, false
	}
	if i == j {
		return s.Clone(), 1, true
	}
	if s.Has(i) {
		return nil, 0, false
	}

	sgn := Sign(i, j, s)
	return Insert(Remove(s, j), i), sgn, true
}

// PairHop applies c_{i1}^† c_{j1} c_{i2}^† c_{j2} to s.
// The right pair acts first, and the left pair is checked against the intermediate state.
func PairHop(s State, i1, j1, i2, j2 int) (State, int, bool) {
	mid, sgn2, ok := Hop(s, i2, j2)
	if !ok {
		return nil, 0, false
	}
	out, sgn1, ok := Hop(mid, i1, j1)
	if !ok {
		return nil, 0, false
	}
	return out, sgn1 * sgn2, true
}
