// Package basis enumerates the fixed particle number occupation states of the
// lowest Landau level on a torus, and groups them by total momentum.
//
// Orbitals of a single layer are numbered 0..Ns-1.
// In a bilayer, orbital p sits in layer p%2 at intra-layer position p/2, so that there are 2*Ns orbitals in total.
package basis

import (
	"iter"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"
)

// MaxOrbitals is the largest orbital count whose states can be packed into a Key.
const MaxOrbitals = 64

// Geometry selects between a single layer and two coupled layers.
type Geometry int

const (
	SingleLayer Geometry = iota
	Bilayer
)

func (g Geometry) String() string {
	switch g {
	case SingleLayer:
		return "single"
	case Bilayer:
		return "bilayer"
	default:
		return "unknown"
	}
}

// Layers returns the number of layers.
func (g Geometry) Layers() int {
	if g == Bilayer {
		return 2
	}
	return 1
}

// Orbitals returns the total number of orbitals for ns orbitals per layer.
func (g Geometry) Orbitals(ns int) int {
	return g.Layers() * ns
}

// Position returns the intra-layer position of orbital p, which is the orbital's momentum.
func (g Geometry) Position(p int) int {
	if g == Bilayer {
		return p / 2
	}
	return p
}

// Layer returns the layer of orbital p.
func (g Geometry) Layer(p int) int {
	if g == Bilayer {
		return p % 2
	}
	return 0
}

// Translate moves orbital p by d positions inside its own layer.
func (g Geometry) Translate(p, d, ns int) int {
	if g == Bilayer {
		return 2*((p/2+d)%ns) + p%2
	}
	return (p + d) % ns
}

// Key is a packed bitmask of the occupied orbitals of a State.
type Key uint64

// State is a strictly increasing list of occupied orbitals.
type State []int

func (s State) Key() Key {
	var k Key
	for _, p := range s {
		k |= 1 << p
	}
	return k
}

// Has reports whether orbital p is occupied.
func (s State) Has(p int) bool {
	_, ok := slices.BinarySearch(s, p)
	return ok
}

func (s State) Clone() State {
	return slices.Clone(s)
}

// Momentum returns the total momentum of s modulo ns.
func Momentum(s State, ns int, g Geometry) int {
	var sum int
	for _, p := range s {
		sum += g.Position(p)
	}
	return sum % ns
}

// Occupations returns the occupation numbers of s, one row per layer and one column per intra-layer position.
func Occupations(s State, ns int, g Geometry) [][]int {
	n := make([][]int, g.Layers())
	for l := range n {
		n[l] = make([]int, ns)
	}
	for _, p := range s {
		n[g.Layer(p)][g.Position(p)] = 1
	}
	return n
}

// Sector is the set of states sharing a total momentum K.
// The index of a state is its position in States, which follows enumeration order.
type Sector struct {
	K      int
	States []State

	index map[Key]int
}

func newSector(k int) *Sector {
	return &Sector{K: k, States: make([]State, 0), index: make(map[Key]int)}
}

func (sec *Sector) add(s State) {
	sec.index[s.Key()] = len(sec.States)
	sec.States = append(sec.States, s)
}

// Len returns the dimension of the sector.
func (sec *Sector) Len() int { return len(sec.States) }

// Index returns the index of s in the sector.
func (sec *Sector) Index(s State) (int, bool) {
	i, ok := sec.index[s.Key()]
	return i, ok
}

// Enumerate returns ns sectors, sector k holding every state of n particles whose momentum is k.
// States are produced in lexicographic order, so repeated calls give identical indices.
// If n exceeds the number of orbitals, all sectors are empty.
func Enumerate(ns, n int, g Geometry) ([]*Sector, error) {
	if err := check(ns, g); err != nil {
		return nil, errors.Wrap(err, "")
	}

	sectors := make([]*Sector, ns)
	for k := range sectors {
		sectors[k] = newSector(k)
	}
	for s := range combinations(g.Orbitals(ns), n) {
		sectors[Momentum(s, ns, g)].add(s)
	}
	return sectors, nil
}

// EnumerateSector returns sector k of Enumerate without building the others.
func EnumerateSector(ns, n int, g Geometry, k int) (*Sector, error) {
	if err := check(ns, g); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if k < 0 || k >= ns {
		return nil, errors.Errorf("%d %d", k, ns)
	}

	sec := newSector(k)
	for s := range combinations(g.Orbitals(ns), n) {
		if Momentum(s, ns, g) == k {
			sec.add(s)
		}
	}
	return sec, nil
}

// All returns every state of n particles regardless of momentum.
func All(ns, n int, g Geometry) ([]State, error) {
	if err := check(ns, g); err != nil {
		return nil, errors.Wrap(err, "")
	}
	states := make([]State, 0)
	for s := range combinations(g.Orbitals(ns), n) {
		states = append(states, s)
	}
	return states, nil
}

// Dimension returns the size of the full n particle space.
func Dimension(ns, n int, g Geometry) int {
	orbitals := g.Orbitals(ns)
	if n < 0 || n > orbitals {
		return 0
	}
	return combin.Binomial(orbitals, n)
}

func check(ns int, g Geometry) error {
	if ns < 1 {
		return errors.Errorf("%d", ns)
	}
	if g.Orbitals(ns) > MaxOrbitals {
		return errors.Errorf("%d orbitals exceed %d", g.Orbitals(ns), MaxOrbitals)
	}
	return nil
}

func combinations(orbitals, n int) iter.Seq[State] {
	return func(yield func(State) bool) {
		if n < 0 || n > orbitals {
			return
		}
		gen := combin.NewCombinationGenerator(orbitals, n)
		for gen.Next() {
			if !yield(State(gen.Combination(nil))) {
				return
			}
		}
	}
}
