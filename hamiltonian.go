package fqh

import (
	"github.com/pkg/errors"

	"github.com/fumin/fqh/basis"
	"github.com/fumin/fqh/interaction"
	"github.com/fumin/fqh/mat"
)

// Params are the physical parameters of a Hamiltonian beyond its interaction.
type Params struct {
	Ns        int
	Geometry  basis.Geometry
	Tunneling float64
}

// Assemble writes the Hamiltonian of sector into h, which is resized to the sector's dimension.
//
// The Hamiltonian is
//
//	H = Σ_{k<Ns/2} V(k, 0) Σ_i n_i n_{i+k}
//	  + Σ_{0<m<k<Ns/2} V(k, m) Σ_i (c_{i+m}^† c_i c_{i+k}^† c_{i+k+m} + h.c.)
//	  - t Σ_i (c_{i,0}^† c_{i,1} + h.c.),
//
// where translations stay inside a layer, and the last term is present only for a bilayer.
func Assemble(h mat.Matrix, sector *basis.Sector, table *interaction.Table, p Params) error {
	dim := sector.Len()
	h.Zeros(dim, dim)
	if dim == 0 {
		return nil
	}
	if table.Ns != p.Ns {
		return errors.Errorf("%d %d", table.Ns, p.Ns)
	}

	electrostatic(h, sector, table, p)
	if err := pairHopping(h, sector, table, p); err != nil {
		return errors.Wrap(err, "")
	}
	if p.Geometry == basis.Bilayer && p.Tunneling != 0 {
		if err := tunneling(h, sector, p); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if err := h.Err(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func electrostatic(h mat.Matrix, sector *basis.Sector, table *interaction.Table, p Params) {
	for idx, s := range sector.States {
		var e float64
		for _, n := range basis.Occupations(s, p.Ns, p.Geometry) {
			for k, v := range table.V0 {
				for i := range p.Ns {
					e += v * float64(n[i]*n[(i+k)%p.Ns])
				}
			}
		}
		h.Add(e, idx, idx)
	}
}

func pairHopping(h mat.Matrix, sector *basis.Sector, table *interaction.Table, p Params) error {
	orbitals := p.Geometry.Orbitals(p.Ns)
	inc := func(i, d int) int { return p.Geometry.Translate(i, d, p.Ns) }
	for k, vk := range table.Vkm {
		for m := 1; m < k; m++ {
			v := vk[m]
			if v == 0 {
				continue
			}
			for i := range orbitals {
				for col, s := range sector.States {
					out, sgn, ok := basis.PairHop(s, inc(i, m), i, inc(i, k), inc(i, k+m))
					if !ok {
						continue
					}
					row, ok := sector.Index(out)
					if !ok {
						return errors.Errorf("%v not in sector %d, from %v", out, sector.K, s)
					}
					mat.AddSym(h, v*float64(sgn), row, col)
				}
			}
		}
	}
	return nil
}

func tunneling(h mat.Matrix, sector *basis.Sector, p Params) error {
	for i := range p.Ns {
		for col, s := range sector.States {
			out, sgn, ok := basis.Hop(s, 2*i, 2*i+1)
			if !ok {
				continue
			}
			row, ok := sector.Index(out)
			if !ok {
				return errors.Errorf("%v not in sector %d, from %v", out, sector.K, s)
			}
			mat.AddSym(h, -p.Tunneling*float64(sgn), row, col)
		}
	}
	return nil
}
