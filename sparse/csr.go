package sparse

import (
	"runtime"
	"sort"
	"sync"
)

// DefaultParallelThreshold is the minimum non-zero count for a parallel
// matrix-vector product. Below this, a single goroutine is faster.
const DefaultParallelThreshold = 4096

// CSR is a compressed sparse row matrix.
type CSR struct {
	rows, cols int
	RowPtr     []int
	ColIdx     []int
	Values     []float64

	parallelNNZ int
}

// Dims returns the matrix shape.
func (m *CSR) Dims() (rows, cols int) { return m.rows, m.cols }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.Values) }

// SetParallelThreshold sets the non-zero count above which MulVecTo splits
// rows across goroutines. Zero or negative restores the default.
func (m *CSR) SetParallelThreshold(nnz int) {
	m.parallelNNZ = nnz
}

// At returns element (i, j). It is linear in the row length and meant for tests.
func (m *CSR) At(i, j int) float64 {
	for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
		if m.ColIdx[p] == j {
			return m.Values[p]
		}
	}
	return 0
}

// MulVecTo computes dst = A·x. dst must have length rows and must not alias x.
func (m *CSR) MulVecTo(dst, x []float64) {
	if len(dst) != m.rows || len(x) != m.cols {
		panic("sparse: dimension mismatch in MulVecTo")
	}
	threshold := m.parallelNNZ
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}
	workers := runtime.GOMAXPROCS(0)
	if len(m.Values) < threshold || workers < 2 || m.rows < 2*workers {
		m.mulRows(dst, x, 0, m.rows)
		return
	}

	// Each worker owns a disjoint row range, so no accumulator is shared.
	chunk := (m.rows + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < m.rows; start += chunk {
		end := min(start+chunk, m.rows)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			m.mulRows(dst, x, start, end)
		}(start, end)
	}
	wg.Wait()
}

func (m *CSR) mulRows(dst, x []float64, start, end int) {
	for i := start; i < end; i++ {
		var sum float64
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			sum += m.Values[p] * x[m.ColIdx[p]]
		}
		dst[i] = sum
	}
}

// MulTransVecTo computes dst = Aᵀ·x. dst must have length cols.
func (m *CSR) MulTransVecTo(dst, x []float64) {
	if len(dst) != m.cols || len(x) != m.rows {
		panic("sparse: dimension mismatch in MulTransVecTo")
	}
	for j := range dst {
		dst[j] = 0
	}
	for i := 0; i < m.rows; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			dst[m.ColIdx[p]] += m.Values[p] * xi
		}
	}
}

// Transpose returns Aᵀ in CSR form.
func (m *CSR) Transpose() *CSR {
	counts := make([]int, m.cols+1)
	for _, j := range m.ColIdx {
		counts[j+1]++
	}
	for j := 0; j < m.cols; j++ {
		counts[j+1] += counts[j]
	}
	colIdx := make([]int, len(m.Values))
	values := make([]float64, len(m.Values))
	next := make([]int, m.cols)
	copy(next, counts[:m.cols])
	for i := 0; i < m.rows; i++ {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			q := next[m.ColIdx[p]]
			colIdx[q] = i
			values[q] = m.Values[p]
			next[m.ColIdx[p]]++
		}
	}
	return &CSR{rows: m.cols, cols: m.rows, RowPtr: counts, ColIdx: colIdx, Values: values, parallelNNZ: m.parallelNNZ}
}

// MulDiagTrans returns B·diag(d)·Bᵀ, the symmetric operator of the dual
// contact problem. d must have length cols of B.
func MulDiagTrans(b *CSR, d []float64) *CSR {
	if len(d) != b.cols {
		panic("sparse: dimension mismatch in MulDiagTrans")
	}
	bt := b.Transpose()

	rowPtr := make([]int, b.rows+1)
	var colIdx []int
	var values []float64

	// Gustavson accumulation with a dense marker per output row.
	acc := make([]float64, b.rows)
	marker := make([]int, b.rows)
	for i := range marker {
		marker[i] = -1
	}
	var pattern []int
	for i := 0; i < b.rows; i++ {
		pattern = pattern[:0]
		for p := b.RowPtr[i]; p < b.RowPtr[i+1]; p++ {
			k := b.ColIdx[p]
			w := b.Values[p] * d[k]
			if w == 0 {
				continue
			}
			for q := bt.RowPtr[k]; q < bt.RowPtr[k+1]; q++ {
				j := bt.ColIdx[q]
				if marker[j] != i {
					marker[j] = i
					acc[j] = 0
					pattern = append(pattern, j)
				}
				acc[j] += w * bt.Values[q]
			}
		}
		sort.Ints(pattern)
		for _, j := range pattern {
			colIdx = append(colIdx, j)
			values = append(values, acc[j])
		}
		rowPtr[i+1] = len(values)
	}
	return &CSR{rows: b.rows, cols: b.rows, RowPtr: rowPtr, ColIdx: colIdx, Values: values, parallelNNZ: b.parallelNNZ}
}

// sumDuplicates sorts each row by column and merges repeated columns.
func (m *CSR) sumDuplicates() {
	out := 0
	start := 0
	for i := 0; i < m.rows; i++ {
		end := m.RowPtr[i+1]
		row := rowSorter{cols: m.ColIdx[start:end], vals: m.Values[start:end]}
		sort.Sort(row)
		rowStart := out
		for p := start; p < end; p++ {
			if out > rowStart && m.ColIdx[out-1] == m.ColIdx[p] {
				m.Values[out-1] += m.Values[p]
				continue
			}
			m.ColIdx[out] = m.ColIdx[p]
			m.Values[out] = m.Values[p]
			out++
		}
		start = end
		m.RowPtr[i+1] = out
	}
	m.ColIdx = m.ColIdx[:out]
	m.Values = m.Values[:out]
}

type rowSorter struct {
	cols []int
	vals []float64
}

func (r rowSorter) Len() int           { return len(r.cols) }
func (r rowSorter) Less(i, j int) bool { return r.cols[i] < r.cols[j] }
func (r rowSorter) Swap(i, j int) {
	r.cols[i], r.cols[j] = r.cols[j], r.cols[i]
	r.vals[i], r.vals[j] = r.vals[j], r.vals[i]
}
