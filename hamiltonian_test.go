package fqh

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"path/filepath"
	"slices"
	"testing"

	gomat "gonum.org/v1/gonum/mat"

	"github.com/fumin/fqh/basis"
	"github.com/fumin/fqh/interaction"
	"github.com/fumin/fqh/mat"
)

func TestAssembleHermitian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns int
		n  int
		g  basis.Geometry
		t  float64
	}{
		{ns: 6, n: 3, g: basis.SingleLayer},
		{ns: 8, n: 3, g: basis.SingleLayer},
		{ns: 6, n: 2, g: basis.Bilayer, t: 0.3},
		{ns: 4, n: 3, g: basis.Bilayer, t: -1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %s", test.ns, test.n, test.g), func(t *testing.T) {
			t.Parallel()
			table := newTestTable(t, test.ns)
			p := Params{Ns: test.ns, Geometry: test.g, Tunneling: test.t}
			sectors, err := basis.Enumerate(test.ns, test.n, test.g)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			dir := t.TempDir()
			for _, sector := range sectors {
				mem := mat.COOZeros(0, 0)
				if err := Assemble(mem, sector, table, p); err != nil {
					t.Fatalf("%+v", err)
				}
				if mem.Rows() != sector.Len() || mem.Cols() != sector.Len() {
					t.Fatalf("%dx%d, expected %d", mem.Rows(), mem.Cols(), sector.Len())
				}
				if a := mem.CSR().Asymmetry(); a > 1e-14 {
					t.Fatalf("sector %d asymmetry %g", sector.K, a)
				}

				disk, err := mat.NewDiskMatrix(filepath.Join(dir, fmt.Sprintf("%d.db", sector.K)), 0, 0)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if err := Assemble(disk, sector, table, p); err != nil {
					t.Fatalf("%+v", err)
				}
				coo, err := disk.COO()
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if !coo.Equal(mem) {
					t.Fatalf("sector %d %s, expected %s", sector.K, coo, mem)
				}
				if err := disk.Close(); err != nil {
					t.Fatalf("%+v", err)
				}
			}
		})
	}
}

// TestAssembleFock compares the union of the sector spectra with the spectrum of
// the same Hamiltonian built on the full fixed particle number space from Jordan-Wigner operators.
func TestAssembleFock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns int
		n  int
		g  basis.Geometry
		t  float64
	}{
		{ns: 6, n: 3, g: basis.SingleLayer},
		{ns: 7, n: 3, g: basis.SingleLayer},
		{ns: 8, n: 2, g: basis.SingleLayer},
		{ns: 3, n: 2, g: basis.Bilayer, t: 0.4},
		{ns: 6, n: 2, g: basis.Bilayer, t: 0.25},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %s", test.ns, test.n, test.g), func(t *testing.T) {
			t.Parallel()
			table := newTestTable(t, test.ns)
			p := Params{Ns: test.ns, Geometry: test.g, Tunneling: test.t}

			sectors, err := basis.Enumerate(test.ns, test.n, test.g)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			union := make([]float64, 0)
			for _, sector := range sectors {
				h := mat.COOZeros(0, 0)
				if err := Assemble(h, sector, table, p); err != nil {
					t.Fatalf("%+v", err)
				}
				vvs, err := h.CSR().Eigen()
				if err != nil {
					t.Fatalf("%+v", err)
				}
				for _, vv := range vvs {
					union = append(union, vv.Val)
				}
			}
			slices.Sort(union)

			expected := fockSpectrum(t, test.ns, test.n, test.g, table, test.t)
			if len(union) != len(expected) {
				t.Fatalf("%d, expected %d", len(union), len(expected))
			}
			for i := range union {
				if math.Abs(union[i]-expected[i]) > 1e-10 {
					t.Fatalf("%d %v, expected %v", i, union, expected)
				}
			}
		})
	}
}

func TestAssembleDiagonal(t *testing.T) {
	t.Parallel()
	// Ns = 4 has no pair hopping, so every state is an eigenstate.
	const ns, n = 4, 2
	table := newTestTable(t, ns)
	sectors, err := basis.Enumerate(ns, n, basis.SingleLayer)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	bare := 2 * table.V0[0]
	adjacent := bare + table.V0[1]
	expected := []*mat.COO{
		mat.M([][]float64{{bare}}),
		mat.M([][]float64{{adjacent, 0}, {0, adjacent}}),
		mat.M([][]float64{{bare}}),
		mat.M([][]float64{{adjacent, 0}, {0, adjacent}}),
	}
	for k, sector := range sectors {
		h := mat.COOZeros(0, 0)
		if err := Assemble(h, sector, table, Params{Ns: ns}); err != nil {
			t.Fatalf("%+v", err)
		}
		if !h.Equal(expected[k]) {
			t.Fatalf("sector %d %s, expected %s", k, h, expected[k])
		}
	}
}

func TestAssembleZeroInteraction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns   int
		n    int
		g    basis.Geometry
		numE int
	}{
		{ns: 10, n: 4, g: basis.SingleLayer, numE: 3},
		{ns: 5, n: 2, g: basis.Bilayer, numE: 4},
		{ns: 6, n: 3, g: basis.SingleLayer, numE: 100},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %s", test.ns, test.n, test.g), func(t *testing.T) {
			t.Parallel()
			p := Params{Ns: test.ns, Geometry: test.g}
			sectors, err := basis.Enumerate(test.ns, test.n, test.g)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for _, sector := range sectors {
				h := mat.COOZeros(0, 0)
				if err := Assemble(h, sector, interaction.ZeroTable(test.ns), p); err != nil {
					t.Fatalf("%+v", err)
				}
				if len(h.Data) != 0 {
					t.Fatalf("%v", h.Data)
				}
				vvs, err := mat.Eigsh(context.Background(), h.CSR(), test.numE, mat.NewEigshOptions().DenseThreshold(0))
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if len(vvs) != min(test.numE, sector.Len()) {
					t.Fatalf("%d, expected %d", len(vvs), min(test.numE, sector.Len()))
				}
				for _, vv := range vvs {
					if vv.Val != 0 {
						t.Fatalf("sector %d %v", sector.K, vvs)
					}
				}
			}
		})
	}
}

func TestAssembleEmpty(t *testing.T) {
	t.Parallel()
	sector, err := basis.EnumerateSector(4, 5, basis.SingleLayer, 0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	h := mat.M([][]float64{{1, 2}, {3, 4}})
	if err := Assemble(h, sector, interaction.ZeroTable(4), Params{Ns: 4}); err != nil {
		t.Fatalf("%+v", err)
	}
	if h.Rows() != 0 || h.Cols() != 0 || len(h.Data) != 0 {
		t.Fatalf("%dx%d %v", h.Rows(), h.Cols(), h.Data)
	}
}

func TestAssembleTableMismatch(t *testing.T) {
	t.Parallel()
	sector, err := basis.EnumerateSector(6, 2, basis.SingleLayer, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := Assemble(mat.COOZeros(0, 0), sector, interaction.ZeroTable(4), Params{Ns: 6}); err == nil {
		t.Fatalf("no error")
	}
}

func newTestTable(t *testing.T, ns int) *interaction.Table {
	torus, err := interaction.NewTorus(ns, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	table, err := interaction.NewTable(ns, torus, interaction.DefaultCutoff)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return table
}

// fermionOp is c_p^† if create, otherwise c_p.
type fermionOp struct {
	create bool
	p      int
}

// applyOps applies the product ops[0] ops[1] ... to the Fock state f, rightmost first.
func applyOps(f uint64, ops ...fermionOp) (uint64, float64, bool) {
	sgn := 1.0
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		occupied := f&(1<<op.p) != 0
		if occupied == op.create {
			return 0, 0, false
		}
		if bits.OnesCount64(f&(1<<op.p-1))%2 == 1 {
			sgn = -sgn
		}
		f ^= 1 << op.p
	}
	return f, sgn, true
}

func fockSpectrum(t *testing.T, ns, n int, g basis.Geometry, table *interaction.Table, tunneling float64) []float64 {
	states, err := basis.All(ns, n, g)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	index := make(map[uint64]int, len(states))
	for i, s := range states {
		index[uint64(s.Key())] = i
	}
	dim := len(states)
	h := gomat.NewDense(dim, dim, nil)
	addTerm := func(v float64, ops ...fermionOp) {
		for col, s := range states {
			f, sgn, ok := applyOps(uint64(s.Key()), ops...)
			if !ok {
				continue
			}
			row := index[f]
			h.Set(row, col, h.At(row, col)+v*sgn)
		}
	}
	// Hermitian conjugate of a product of operators.
	dagger := func(ops []fermionOp) []fermionOp {
		d := make([]fermionOp, len(ops))
		for i, op := range ops {
			d[len(ops)-1-i] = fermionOp{create: !op.create, p: op.p}
		}
		return d
	}

	orbitals := g.Orbitals(ns)
	for i := range orbitals {
		for k := range ns / 2 {
			j := g.Translate(i, k, ns)
			addTerm(table.V0[k], fermionOp{true, i}, fermionOp{false, i}, fermionOp{true, j}, fermionOp{false, j})
		}
	}
	for k := range ns / 2 {
		for m := 1; m < k; m++ {
			for i := range orbitals {
				ops := []fermionOp{
					{true, g.Translate(i, m, ns)}, {false, i},
					{true, g.Translate(i, k, ns)}, {false, g.Translate(i, k+m, ns)},
				}
				addTerm(table.Vkm[k][m], ops...)
				addTerm(table.Vkm[k][m], dagger(ops)...)
			}
		}
	}
	if g == basis.Bilayer {
		for i := range ns {
			ops := []fermionOp{{true, 2 * i}, {false, 2*i + 1}}
			addTerm(-tunneling, ops...)
			addTerm(-tunneling, dagger(ops)...)
		}
	}

	sym := gomat.NewSymDense(dim, nil)
	for i := range dim {
		for j := i; j < dim; j++ {
			if d := math.Abs(h.At(i, j) - h.At(j, i)); d > 1e-14 {
				t.Fatalf("%d %d asymmetric %g", i, j, d)
			}
			sym.SetSym(i, j, h.At(i, j))
		}
	}
	var eig gomat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		t.Fatalf("eigen decomposition failed")
	}
	vals := eig.Values(nil)
	slices.Sort(vals)
	return vals
}
