// Package sparse provides the triplet and compressed-row matrices used to
// assemble and apply contact constraint systems.
package sparse

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned when a triplet lies outside the declared shape.
var ErrIndexOutOfRange = errors.New("sparse: index out of range")

// COO is an append-only coordinate (row, col, value) triplet sink.
// Duplicate entries are summed on conversion to CSR.
type COO struct {
	rows, cols int
	RowIdx     []int
	ColIdx     []int
	Values     []float64
}

// NewCOO creates an empty rows×cols triplet matrix with room for capHint entries.
func NewCOO(rows, cols, capHint int) *COO {
	c := &COO{}
	c.Reset(rows, cols, capHint)
	return c
}

// Reset clears the triplets and sets a new shape, keeping allocated storage.
func (c *COO) Reset(rows, cols, capHint int) {
	c.rows, c.cols = rows, cols
	if cap(c.RowIdx) < capHint {
		c.RowIdx = make([]int, 0, capHint)
		c.ColIdx = make([]int, 0, capHint)
		c.Values = make([]float64, 0, capHint)
		return
	}
	c.RowIdx = c.RowIdx[:0]
	c.ColIdx = c.ColIdx[:0]
	c.Values = c.Values[:0]
}

// Dims returns the declared shape.
func (c *COO) Dims() (rows, cols int) { return c.rows, c.cols }

// NNZ returns the number of stored triplets (duplicates counted separately).
func (c *COO) NNZ() int { return len(c.Values) }

// Append adds one triplet.
func (c *COO) Append(row, col int, v float64) {
	c.RowIdx = append(c.RowIdx, row)
	c.ColIdx = append(c.ColIdx, col)
	c.Values = append(c.Values, v)
}

// DistinctRows returns how many different rows carry at least one triplet.
func (c *COO) DistinctRows() int {
	seen := make(map[int]struct{}, c.rows)
	for _, r := range c.RowIdx {
		seen[r] = struct{}{}
	}
	return len(seen)
}

// ToCSR compresses the triplets into row-major form, summing duplicates.
func (c *COO) ToCSR() (*CSR, error) {
	counts := make([]int, c.rows+1)
	for k, r := range c.RowIdx {
		if r < 0 || r >= c.rows || c.ColIdx[k] < 0 || c.ColIdx[k] >= c.cols {
			return nil, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrIndexOutOfRange, r, c.ColIdx[k], c.rows, c.cols)
		}
		counts[r+1]++
	}
	for i := 0; i < c.rows; i++ {
		counts[i+1] += counts[i]
	}

	colIdx := make([]int, len(c.Values))
	values := make([]float64, len(c.Values))
	next := make([]int, c.rows)
	copy(next, counts[:c.rows])
	for k, r := range c.RowIdx {
		p := next[r]
		colIdx[p] = c.ColIdx[k]
		values[p] = c.Values[k]
		next[r]++
	}

	m := &CSR{rows: c.rows, cols: c.cols, RowPtr: counts, ColIdx: colIdx, Values: values}
	m.sumDuplicates()
	return m, nil
}
