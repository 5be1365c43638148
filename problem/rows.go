package problem

import (
	"fmt"

	"github.com/pthm-cable/grains/cone"
)

// BlockSize is the number of rows in a friction block: one normal row and
// three tangential rows.
const BlockSize = 4

// Layout is the partition of the constraint rows into regions, in order:
// single dry rows, negative pair rows, push blocks and pull blocks.
type Layout struct {
	Dry      int
	Negative int
	Push     int
	Pull     int
}

// Rows returns the total row count of the layout.
func (l Layout) Rows() int {
	return l.Dry + l.Negative + BlockSize*(l.Push+l.Pull)
}

// Cone returns the feasible set of the layout: dry and negative rows are
// non-negative, push and pull blocks are Lorentz cones of slope mu.
func (l Layout) Cone(mu float64) cone.Projector {
	blocks := BlockSize * (l.Push + l.Pull)
	if blocks == 0 {
		return cone.NonNegative{}
	}
	lorentz := cone.Lorentz{Mu: mu, Block: BlockSize}
	if l.Dry+l.Negative == 0 {
		return lorentz
	}
	return cone.Piecewise{
		{Len: l.Dry + l.Negative, Projector: cone.NonNegative{}},
		{Len: blocks, Projector: lorentz},
	}
}

// RowAllocator hands out row indices region by region in contact order.
// Assembly and decode walk the contacts the same way, so both see the same
// numbering.
type RowAllocator struct {
	layout              Layout
	dry, neg, push, pull int
	overflow            bool
}

// NewRowAllocator returns an allocator for layout.
func NewRowAllocator(layout Layout) *RowAllocator {
	return &RowAllocator{layout: layout}
}

// Layout returns the layout the allocator was built for.
func (a *RowAllocator) Layout() Layout { return a.layout }

// Dry returns the next single dry row.
func (a *RowAllocator) Dry() int {
	r := a.dry
	a.dry++
	a.check(a.dry, a.layout.Dry)
	return r
}

// Negative returns the next negative pair row.
func (a *RowAllocator) Negative() int {
	r := a.layout.Dry + a.neg
	a.neg++
	a.check(a.neg, a.layout.Negative)
	return r
}

// Block returns the first row of the next push block.
func (a *RowAllocator) Block() int {
	r := a.layout.Dry + a.layout.Negative + BlockSize*a.push
	a.push++
	a.check(a.push, a.layout.Push)
	return r
}

// Bonded returns the first rows of the next push block and its paired
// pull block.
func (a *RowAllocator) Bonded() (push, pull int) {
	push = a.Block()
	pull = a.layout.Dry + a.layout.Negative + BlockSize*(a.layout.Push+a.pull)
	a.pull++
	a.check(a.pull, a.layout.Pull)
	return push, pull
}

func (a *RowAllocator) check(issued, capacity int) {
	if issued > capacity {
		a.overflow = true
	}
}

// Finish reports ErrRowCountMismatch unless every row of the layout was
// issued exactly once.
func (a *RowAllocator) Finish() error {
	l := a.layout
	if a.overflow || a.dry != l.Dry || a.neg != l.Negative || a.push != l.Push || a.pull != l.Pull {
		return fmt.Errorf("%w: layout %+v, issued dry=%d negative=%d push=%d pull=%d",
			ErrRowCountMismatch, l, a.dry, a.neg, a.push, a.pull)
	}
	return nil
}
