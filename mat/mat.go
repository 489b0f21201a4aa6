package mat

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a sink of matrix elements.
// Elements added at the same position are summed.
// Implementations that can fail record the first error, which is reported by Err.
type Matrix interface {
	Zeros(int, int)
	Rows() int
	Cols() int

	Add(v float64, row, col int)
	COO() (*COO, error)

	Err() error
}

// AddSym adds v at (row, col) and at (col, row).
// A diagonal element therefore receives 2v, which is the diagonal of A + A^T.
func AddSym(m Matrix, v float64, row, col int) {
	m.Add(v, row, col)
	m.Add(v, col, row)
}

// Element is a matrix element.
type Element struct {
	V   float64
	Row int
	Col int
}

// COO is an in-memory sparse matrix in coordinate format.
type COO struct {
	rows int
	cols int
	Data []Element
}

func M(dense [][]float64) *COO {
	m := &COO{rows: len(dense), Data: make([]Element, 0)}
	if len(dense) > 0 {
		m.cols = len(dense[0])
	}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, Element{V: v, Row: i, Col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := &COO{Data: make([]Element, 0)}
	m.Zeros(rows, cols)
	return m
}

func (m *COO) Rows() int          { return m.rows }
func (m *COO) Cols() int          { return m.cols }
func (m *COO) Err() error         { return nil }
func (m *COO) COO() (*COO, error) { return m, nil }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Add(v float64, row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("%d %d out of %dx%d", row, col, m.rows, m.cols))
	}
	if v == 0 {
		return
	}
	m.Data = append(m.Data, Element{V: v, Row: row, Col: col})
}

// Compact sorts the elements in row major order, sums duplicates and drops zeros.
func (m *COO) Compact() {
	slices.SortStableFunc(m.Data, rowMajor)
	out := m.Data[:0]
	for _, e := range m.Data {
		if n := len(out); n > 0 && out[n-1].Row == e.Row && out[n-1].Col == e.Col {
			out[n-1].V += e.V
			continue
		}
		out = append(out, e)
	}
	m.Data = slices.DeleteFunc(out, func(e Element) bool { return e.V == 0 })
}

// Equal reports whether a and b hold identical compacted elements.
func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	a.Compact()
	b.Compact()
	return slices.Equal(a.Data, b.Data)
}

func (m *COO) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for _, v := range m.Data {
		d.Set(v.Row, v.Col, d.At(v.Row, v.Col)+v.V)
	}
	return d
}

// CSR converts m to compressed sparse row format.
func (m *COO) CSR() *CSR {
	m.Compact()
	c := &CSR{
		rows:    m.rows,
		cols:    m.cols,
		indptr:  make([]int, m.rows+1),
		indices: make([]int, 0, len(m.Data)),
		data:    make([]float64, 0, len(m.Data)),
	}
	for _, v := range m.Data {
		c.indptr[v.Row+1]++
		c.indices = append(c.indices, v.Col)
		c.data = append(c.data, v.V)
	}
	for i := range m.rows {
		c.indptr[i+1] += c.indptr[i]
	}
	return c
}

func (m *COO) String() string {
	return format(m.Dense(), m.rows, m.cols)
}

// CSR is a sparse matrix in compressed sparse row format.
// It implements gonum's mat.Matrix.
type CSR struct {
	rows    int
	cols    int
	indptr  []int
	indices []int
	data    []float64
}

func (m *CSR) Rows() int { return m.rows }
func (m *CSR) Cols() int { return m.cols }

func (m *CSR) Dims() (int, int) { return m.rows, m.cols }

func (m *CSR) T() mat.Matrix { return mat.Transpose{Matrix: m} }

func (m *CSR) NumNonZero() int { return len(m.data) }

func (m *CSR) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	cols := m.indices[m.indptr[i]:m.indptr[i+1]]
	p, ok := slices.BinarySearch(cols, j)
	if !ok {
		return 0
	}
	return m.data[m.indptr[i]+p]
}

// MulVec sets dst = m x and returns dst.
func (m *CSR) MulVec(dst, x []float64) []float64 {
	if len(x) != m.cols || len(dst) != m.rows {
		panic(fmt.Sprintf("%d %d for %dx%d", len(dst), len(x), m.rows, m.cols))
	}
	for i := range m.rows {
		var s float64
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			s += m.data[p] * x[m.indices[p]]
		}
		dst[i] = s
	}
	return dst
}

// Asymmetry returns max |m_ij - m_ji|.
func (m *CSR) Asymmetry() float64 {
	var d float64
	for i := range m.rows {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			j := m.indices[p]
			var mji float64
			if j < m.rows && i < m.cols {
				mji = m.At(j, i)
			}
			d = max(d, math.Abs(m.data[p]-mji))
		}
	}
	return d
}

func (m *CSR) String() string {
	if m.rows == 0 || m.cols == 0 {
		return ""
	}
	return format(mat.DenseCopyOf(m), m.rows, m.cols)
}

// ValVec is an eigenvalue and its normalized eigenvector.
type ValVec struct {
	Val float64
	Vec []float64
}

// Eigen returns all eigenpairs of the symmetric matrix m in ascending order, computed densely.
func (m *CSR) Eigen() ([]ValVec, error) {
	if m.rows != m.cols {
		return nil, errors.Errorf("%d %d", m.rows, m.cols)
	}
	if m.rows == 0 {
		return nil, nil
	}

	sym := mat.NewSymDense(m.rows, nil)
	for i := range m.rows {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			if j := m.indices[p]; j >= i {
				sym.SetSym(i, j, m.data[p])
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigen decomposition failed %d", m.rows)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vvs = append(vvs, ValVec{Val: v, Vec: mat.Col(nil, i, &vecs)})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}

func rowMajor(a, b Element) int {
	if c := cmp.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	return cmp.Compare(a.Col, b.Col)
}

func format(d mat.Matrix, rows, cols int) string {
	lines := make([]string, 0, rows)
	for i := range rows {
		cs := make([]string, 0, cols)
		for j := range cols {
			cs = append(cs, formatFloat(d.At(i, j)))
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}
	return strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := fmt.Sprintf("%.6g", v)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}
