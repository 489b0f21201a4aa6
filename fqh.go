// Package fqh computes the low lying spectra of fractional quantum Hall systems on a torus by exact diagonalization.
//
// Electrons in the lowest Landau level of a single layer or a bilayer interact through the Coulomb potential.
// Total momentum modulo Ns is conserved, so each momentum sector is diagonalized separately and in parallel.
package fqh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/fqh/basis"
	"github.com/fumin/fqh/interaction"
	"github.com/fumin/fqh/mat"
)

// SectorResult is the spectrum of one momentum sector.
type SectorResult struct {
	K   int
	Dim int
	// NumNonZero is the number of nonzero elements of the sector's Hamiltonian.
	NumNonZero int
	// Energies are the lowest eigenvalues in ascending order.
	Energies []float64
	// Vectors are the eigenvectors of Energies, present only if requested.
	Vectors [][]float64
	// Sector is the basis that Vectors are expressed in, present only with Vectors.
	Sector *basis.Sector
	Err    error
}

// Result holds the sector results in ascending order of momentum.
type Result struct {
	Sectors []SectorResult
}

// Spectrum returns the energies of each sector.
func (r Result) Spectrum() [][]float64 {
	spec := make([][]float64, 0, len(r.Sectors))
	for _, s := range r.Sectors {
		spec = append(spec, s.Energies)
	}
	return spec
}

// Err combines the errors of all sectors.
func (r Result) Err() error {
	var err error
	for _, s := range r.Sectors {
		if s.Err != nil {
			err = multierr.Append(err, errors.Wrapf(s.Err, "sector %d", s.K))
		}
	}
	return err
}

// Run diagonalizes the sectors selected by cfg.
// A sector that fails records its error in its SectorResult, and the other sectors carry on.
// The returned error is non-nil only if cfg is invalid, the run could not start, or ctx is done.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "")
	}

	torus, err := interaction.NewTorus(cfg.Ns, cfg.AspectRatio)
	if err != nil {
		return Result{}, errors.Wrap(err, "")
	}
	table, err := interaction.NewTable(cfg.Ns, torus, cfg.Cutoff)
	if err != nil {
		return Result{}, errors.Wrap(err, "")
	}

	var sinks sinkFunc = memorySink
	if cfg.Storage == StorageSQLite {
		dir, err := os.MkdirTemp(cfg.StorageDir, "fqh-")
		if err != nil {
			return Result{}, errors.Wrap(err, "")
		}
		defer os.RemoveAll(dir)
		sinks = diskSink(dir)
	}

	return run(ctx, cfg, table, sinks, logger)
}

func run(ctx context.Context, cfg Config, table *interaction.Table, sinks sinkFunc, logger *zap.Logger) (Result, error) {
	ks := cfg.sectors()
	res := Result{Sectors: make([]SectorResult, len(ks))}
	p := Params{Ns: cfg.Ns, Geometry: cfg.Geometry(), Tunneling: cfg.Tunneling}
	opt := cfg.eigshOptions()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, k := range ks {
		g.Go(func() error {
			lg := logger.With(zap.Int("k", k))
			start := time.Now()
			sr := SectorResult{K: k}
			sr.Err = diagonalize(gctx, &sr, cfg, table, p, sinks, opt.Logger(lg))
			res.Sectors[i] = sr
			if sr.Err != nil {
				lg.Info("sector failed", zap.Int("dim", sr.Dim), zap.Duration("elapsed", time.Since(start)), zap.Error(sr.Err))
			} else {
				lg.Info("sector done", zap.Int("dim", sr.Dim), zap.Int("nnz", sr.NumNonZero), zap.Duration("elapsed", time.Since(start)))
			}

			// Only cancellation stops the other sectors.
			if err := gctx.Err(); err != nil {
				return errors.Wrap(err, "")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, errors.Wrap(err, "")
	}
	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(err, "")
	}
	return res, nil
}

func diagonalize(ctx context.Context, sr *SectorResult, cfg Config, table *interaction.Table, p Params, sinks sinkFunc, opt mat.EigshOptions) (err error) {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "")
	}

	sector, err := basis.EnumerateSector(cfg.Ns, cfg.N, p.Geometry, sr.K)
	if err != nil {
		return errors.Wrap(err, "")
	}
	sr.Dim = sector.Len()
	if sr.Dim == 0 {
		return nil
	}

	h, closeSink, err := sinks(sr.K)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer func() {
		if err1 := closeSink(); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
		}
	}()
	if err := Assemble(h, sector, table, p); err != nil {
		return errors.Wrap(err, "")
	}
	coo, err := h.COO()
	if err != nil {
		return errors.Wrap(err, "")
	}
	csr := coo.CSR()
	sr.NumNonZero = csr.NumNonZero()

	vvs, err := mat.Eigsh(ctx, csr, cfg.NumE, opt)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("dim %d", sr.Dim))
	}
	sr.Energies = make([]float64, 0, len(vvs))
	for _, vv := range vvs {
		sr.Energies = append(sr.Energies, vv.Val)
	}
	if cfg.Vectors {
		sr.Sector = sector
		sr.Vectors = make([][]float64, 0, len(vvs))
		for _, vv := range vvs {
			sr.Vectors = append(sr.Vectors, vv.Vec)
		}
	}
	return nil
}

// sinkFunc returns the matrix that accumulates the Hamiltonian of sector k, and a function that releases it.
type sinkFunc func(k int) (mat.Matrix, func() error, error)

func memorySink(int) (mat.Matrix, func() error, error) {
	return mat.COOZeros(0, 0), func() error { return nil }, nil
}

func diskSink(dir string) sinkFunc {
	return func(k int) (mat.Matrix, func() error, error) {
		path := filepath.Join(dir, fmt.Sprintf("%d-%s.db", k, uuid.NewString()))
		m, err := mat.NewDiskMatrix(path, 0, 0)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		return m, m.Close, nil
	}
}
