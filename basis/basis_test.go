package basis

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnumerate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns      int
		n       int
		g       Geometry
		sectors [][]State
	}{
		{
			ns: 4,
			n:  2,
			g:  SingleLayer,
			sectors: [][]State{
				{{1, 3}},
				{{0, 1}, {2, 3}},
				{{0, 2}},
				{{0, 3}, {1, 2}},
			},
		},
		{
			ns: 2,
			n:  2,
			g:  Bilayer,
			sectors: [][]State{
				// Positions of {0, 1} are {0, 0}, and {2, 3} are {1, 1}.
				{{0, 1}, {2, 3}},
				{{0, 2}, {0, 3}, {1, 2}, {1, 3}},
			},
		},
		{
			ns:      3,
			n:       4,
			g:       SingleLayer,
			sectors: [][]State{{}, {}, {}},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %v", test.ns, test.n, test.g), func(t *testing.T) {
			t.Parallel()
			sectors, err := Enumerate(test.ns, test.n, test.g)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(sectors) != test.ns {
				t.Fatalf("%d, expected %d", len(sectors), test.ns)
			}
			for k, sec := range sectors {
				if sec.K != k {
					t.Fatalf("%d, expected %d", sec.K, k)
				}
				if diff := cmp.Diff(test.sectors[k], sec.States); diff != "" {
					t.Fatalf("sector %d (-want +got):\n%s", k, diff)
				}
				for i, s := range sec.States {
					j, ok := sec.Index(s)
					if !ok || j != i {
						t.Fatalf("%v %d %v, expected %d", s, j, ok, i)
					}
				}
			}
		})
	}
}

func TestPartition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns int
		n  int
		g  Geometry
	}{
		{ns: 6, n: 3, g: SingleLayer},
		{ns: 8, n: 3, g: SingleLayer},
		{ns: 9, n: 3, g: SingleLayer},
		{ns: 5, n: 4, g: Bilayer},
		{ns: 6, n: 4, g: Bilayer},
		{ns: 4, n: 8, g: Bilayer},
		{ns: 4, n: 0, g: SingleLayer},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d %d %v", test.ns, test.n, test.g), func(t *testing.T) {
			t.Parallel()
			sectors, err := Enumerate(test.ns, test.n, test.g)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			seen := make(map[Key]int)
			var total int
			for _, sec := range sectors {
				total += sec.Len()
				for _, s := range sec.States {
					if len(s) != test.n {
						t.Fatalf("%v, expected %d particles", s, test.n)
					}
					for i := 1; i < len(s); i++ {
						if s[i-1] >= s[i] {
							t.Fatalf("%v not increasing", s)
						}
					}
					if k := Momentum(s, test.ns, test.g); k != sec.K {
						t.Fatalf("%v momentum %d, in sector %d", s, k, sec.K)
					}
					if k, ok := seen[s.Key()]; ok {
						t.Fatalf("%v in sectors %d and %d", s, k, sec.K)
					}
					seen[s.Key()] = sec.K
				}
			}
			if dim := Dimension(test.ns, test.n, test.g); total != dim {
				t.Fatalf("%d, expected %d", total, dim)
			}
		})
	}
}

func TestEnumerateDeterministic(t *testing.T) {
	t.Parallel()
	const ns, n = 6, 4
	for _, g := range []Geometry{SingleLayer, Bilayer} {
		a, err := Enumerate(ns, n, g)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		b, err := Enumerate(ns, n, g)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		for k := range a {
			if diff := cmp.Diff(a[k].States, b[k].States); diff != "" {
				t.Fatalf("%v %d (-first +second):\n%s", g, k, diff)
			}

			sec, err := EnumerateSector(ns, n, g, k)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if diff := cmp.Diff(a[k].States, sec.States); diff != "" {
				t.Fatalf("%v %d (-all +single):\n%s", g, k, diff)
			}
			for i, s := range a[k].States {
				if j, _ := sec.Index(s); j != i {
					t.Fatalf("%v %d, expected %d", s, j, i)
				}
			}
		}
	}
}

func TestEnumerateErrors(t *testing.T) {
	t.Parallel()
	if _, err := Enumerate(0, 1, SingleLayer); err == nil {
		t.Fatalf("expected error for zero orbitals")
	}
	if _, err := Enumerate(33, 1, Bilayer); err == nil {
		t.Fatalf("expected error for 66 orbitals")
	}
	if _, err := EnumerateSector(4, 2, SingleLayer, 4); err == nil {
		t.Fatalf("expected error for sector out of range")
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		g    Geometry
		p    int
		d    int
		ns   int
		want int
	}{
		{g: SingleLayer, p: 3, d: 2, ns: 4, want: 1},
		{g: Bilayer, p: 0, d: 1, ns: 3, want: 2},
		{g: Bilayer, p: 5, d: 1, ns: 3, want: 1},
		{g: Bilayer, p: 3, d: 4, ns: 3, want: 5},
	}
	for _, test := range tests {
		if got := test.g.Translate(test.p, test.d, test.ns); got != test.want {
			t.Fatalf("%#v: %d, expected %d", test, got, test.want)
		}
	}
}

func TestOccupations(t *testing.T) {
	t.Parallel()
	got := Occupations(State{0, 3, 4}, 3, Bilayer)
	want := [][]int{{1, 0, 1}, {0, 1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
