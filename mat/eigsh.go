package mat

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/fqh/mat/util"
)

// ErrNotConverged is returned when Eigsh exhausts its iterations.
var ErrNotConverged = errors.New("mat: eigensolver did not converge")

// deflation is the relative norm below which a new search direction is considered linearly dependent.
const deflation = 1e-10

// EigshOptions are options for Eigsh.
type EigshOptions struct {
	maxIterations  int
	tol            float64
	denseThreshold int
	maxBasis       int
	seed           uint64
	vectors        bool
	logger         *zap.Logger
}

// NewEigshOptions returns the default Eigsh options.
func NewEigshOptions() EigshOptions {
	opt := EigshOptions{}
	opt.maxIterations = 300
	opt.tol = 1e-10
	opt.denseThreshold = 64
	opt.seed = 1
	opt.logger = zap.NewNop()
	return opt
}

// MaxIterations sets the maximum number of block iterations.
func (opt EigshOptions) MaxIterations(i int) EigshOptions {
	opt.maxIterations = i
	return opt
}

// Tol sets the tolerance of the residual |Hy - θy|, relative to the spectral radius bound of H.
func (opt EigshOptions) Tol(tol float64) EigshOptions {
	opt.tol = tol
	return opt
}

// DenseThreshold sets the dimension at or below which the dense solver is used.
func (opt EigshOptions) DenseThreshold(d int) EigshOptions {
	opt.denseThreshold = d
	return opt
}

// MaxBasis caps the number of vectors in the search space, beyond which the search space is restarted.
// Zero selects 2*max(2k+1, 20) for k eigenpairs, and any cap is raised to at least 3k.
func (opt EigshOptions) MaxBasis(n int) EigshOptions {
	opt.maxBasis = n
	return opt
}

// Seed sets the seed of the random starting block.
func (opt EigshOptions) Seed(s uint64) EigshOptions {
	opt.seed = s
	return opt
}

// Vectors sets whether eigenvectors are returned.
func (opt EigshOptions) Vectors(v bool) EigshOptions {
	opt.vectors = v
	return opt
}

// Logger sets the logger for progress reports.
func (opt EigshOptions) Logger(l *zap.Logger) EigshOptions {
	if l == nil {
		l = zap.NewNop()
	}
	opt.logger = l
	return opt
}

// Eigsh returns the k algebraically smallest eigenpairs of the symmetric matrix m in ascending order.
//
// k is clamped to the dimension of m, and an empty matrix has no eigenpairs.
// Matrices no larger than the dense threshold are diagonalized directly.
// Otherwise Eigsh runs a thick restarted block Lanczos iteration of block size k with full reorthogonalization:
// each iteration extends the search space with the residuals of the unconverged Ritz pairs,
// and performs a Rayleigh-Ritz projection on the whole space.
// When the search space would outgrow the basis cap, it is replaced by its lowest Ritz vectors.
// If the residuals are not within tolerance after the maximum number of iterations, the returned error wraps ErrNotConverged.
func Eigsh(ctx context.Context, m *CSR, k int, options ...EigshOptions) ([]ValVec, error) {
	opt := NewEigshOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if m.rows != m.cols {
		return nil, errors.Errorf("%d %d", m.rows, m.cols)
	}
	if k < 1 {
		return nil, errors.Errorf("%d", k)
	}
	if m.rows == 0 {
		return nil, nil
	}
	k = min(k, m.rows)

	var vvs []ValVec
	var err error
	switch {
	case m.rows <= opt.denseThreshold:
		vvs, err = m.Eigen()
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		vvs = vvs[:k]
	default:
		vvs, err = blockLanczos(ctx, m, k, opt)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	if !opt.vectors {
		for i := range vvs {
			vvs[i].Vec = nil
		}
	}
	return vvs, nil
}

// krylov is an orthonormal basis q of a search space, together with hq = m q and the projection q^T m q.
type krylov struct {
	m    *CSR
	q    [][]float64
	hq   [][]float64
	proj [][]float64
}

// extend orthonormalizes v against the basis and appends it.
// It reports false if v is linearly dependent on the basis.
func (kr *krylov) extend(v []float64) bool {
	if !orthonormalize(v, kr.q) {
		return false
	}
	hv := kr.m.MulVec(make([]float64, len(v)), v)

	// Lower triangle of the projection, symmetrized against rounding.
	row := make([]float64, len(kr.q)+1)
	for j, qj := range kr.q {
		row[j] = 0.5 * (floats.Dot(v, kr.hq[j]) + floats.Dot(qj, hv))
	}
	row[len(kr.q)] = floats.Dot(v, hv)

	kr.q = append(kr.q, v)
	kr.hq = append(kr.hq, hv)
	kr.proj = append(kr.proj, row)
	return true
}

// ritz returns the n lowest Ritz pairs, together with the product of m and each Ritz vector.
func (kr *krylov) ritz(n int) ([]ValVec, [][]float64, error) {
	size := len(kr.q)
	sym := mat.NewSymDense(size, nil)
	for i, row := range kr.proj {
		for j, v := range row {
			sym.SetSym(i, j, v)
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, nil, errors.Errorf("projection eigen decomposition failed %d", size)
	}
	vals := eig.Values(nil)
	var s mat.Dense
	eig.VectorsTo(&s)

	dim := kr.m.rows
	vvs := make([]ValVec, 0, n)
	hys := make([][]float64, 0, n)
	for i := range min(n, size) {
		y := make([]float64, dim)
		hy := make([]float64, dim)
		for j := range size {
			sji := s.At(j, i)
			floats.AddScaled(y, sji, kr.q[j])
			floats.AddScaled(hy, sji, kr.hq[j])
		}
		vvs = append(vvs, ValVec{Val: vals[i], Vec: y})
		hys = append(hys, hy)
	}
	return vvs, hys, nil
}

// restart replaces the basis with the orthonormal Ritz vectors vvs, whose products with m are hys.
func (kr *krylov) restart(vvs []ValVec, hys [][]float64) {
	kr.q = make([][]float64, 0, len(vvs))
	kr.hq = make([][]float64, 0, len(vvs))
	kr.proj = make([][]float64, 0, len(vvs))
	for i, vv := range vvs {
		row := make([]float64, i+1)
		for j, qj := range kr.q {
			row[j] = 0.5 * (floats.Dot(vv.Vec, kr.hq[j]) + floats.Dot(qj, hys[i]))
		}
		row[i] = floats.Dot(vv.Vec, hys[i])

		kr.q = append(kr.q, vv.Vec)
		kr.hq = append(kr.hq, hys[i])
		kr.proj = append(kr.proj, row)
	}
}

func blockLanczos(ctx context.Context, m *CSR, k int, opt EigshOptions) ([]ValVec, error) {
	dim := m.rows
	rnd := rand.New(rand.NewPCG(opt.seed, uint64(dim)))
	lower, upper := Gerschgorin(m)
	tol := opt.tol * max(1, math.Abs(lower), math.Abs(upper))
	maxBasis := opt.maxBasis
	if maxBasis <= 0 {
		maxBasis = 2 * max(2*k+1, 20)
	}
	maxBasis = max(maxBasis, 3*k)

	kr := &krylov{m: m}
	block := make([][]float64, 0, k)
	for range k {
		block = append(block, randVector(rnd, dim))
	}

	throttler := util.NewSkipThrottler(10 * time.Second)
	norms := make([]float64, k)
	var restarts int
	for it := range opt.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "")
		}

		var grown int
		for _, v := range block {
			if len(kr.q) == dim {
				break
			}
			if kr.extend(v) {
				grown++
			}
		}
		// Every direction was dependent, so continue from a random one.
		for attempt := 0; grown == 0 && len(kr.q) < dim && attempt < 8; attempt++ {
			if kr.extend(randVector(rnd, dim)) {
				grown++
			}
		}
		if len(kr.q) < k {
			// Not enough directions for k Ritz pairs yet.
			block = block[:0]
			for range k - len(kr.q) {
				block = append(block, randVector(rnd, dim))
			}
			continue
		}

		vvs, hys, err := kr.ritz(k)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		block = block[:0]
		for i, vv := range vvs {
			r := slices.Clone(hys[i])
			floats.AddScaled(r, -vv.Val, vv.Vec)
			norms[i] = floats.Norm(r, 2)
			if norms[i] > tol {
				block = append(block, r)
			}
		}
		if len(block) == 0 || len(kr.q) == dim {
			opt.logger.Debug("eigsh converged", zap.Int("dim", dim), zap.Int("iterations", it+1), zap.Int("basis", len(kr.q)), zap.Int("restarts", restarts))
			return vvs, nil
		}
		if grown == 0 {
			return nil, errors.Wrapf(ErrNotConverged, "search space stalled at %d of %d, residuals %v", len(kr.q), dim, norms)
		}

		// The residuals are orthogonal to the whole search space, hence to any Ritz vectors kept.
		if len(kr.q)+len(block) > maxBasis {
			keep := min(len(kr.q), max(k, maxBasis/2))
			kept, hkept, err := kr.ritz(keep)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			kr.restart(kept, hkept)
			restarts++
		}

		if throttler.Ok() {
			opt.logger.Debug("eigsh", zap.Int("dim", dim), zap.Int("iteration", it), zap.Int("basis", len(kr.q)), zap.Int("restarts", restarts), zap.Float64s("residuals", norms))
		}
	}
	return nil, errors.Wrapf(ErrNotConverged, "%d iterations, %d restarts, basis %d of %d, residuals %v, tolerance %g", opt.maxIterations, restarts, len(kr.q), dim, norms, tol)
}

// orthonormalize makes v orthogonal to the orthonormal vectors q and normalizes it.
// Gram-Schmidt is applied twice, which keeps the basis orthogonal to machine precision.
func orthonormalize(v []float64, q [][]float64) bool {
	norm0 := floats.Norm(v, 2)
	if norm0 == 0 {
		return false
	}
	for range 2 {
		for _, u := range q {
			floats.AddScaled(v, -floats.Dot(u, v), u)
		}
	}
	norm := floats.Norm(v, 2)
	if norm <= deflation*norm0 {
		return false
	}
	floats.Scale(1/norm, v)
	return true
}

func randVector(rnd *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rnd.Float64()*2 - 1
	}
	return v
}
