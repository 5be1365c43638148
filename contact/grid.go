package contact

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// gridThreshold is the minimum sphere count to use the grid.
// Below this, the pairwise scan is faster.
const gridThreshold = 32

// cellKey addresses one grid cell.
type cellKey struct {
	X, Y, Z int
}

// Grid provides neighbor lookups using a cell-based hash grid. Space is
// unbounded so cells live in a map.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]int
}

// NewGrid creates a grid whose cells have the given edge length.
func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
	}
}

// Clear empties every cell, keeping their storage.
func (g *Grid) Clear() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
}

// Insert adds item at position p.
func (g *Grid) Insert(item int, p r3.Vec) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], item)
}

// QueryInto appends the items of the cell containing p and its 26
// neighbors to dst. Any item within one cell size of p is included.
func (g *Grid) QueryInto(dst []int, p r3.Vec) []int {
	c := g.key(p)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				dst = append(dst, g.cells[cellKey{c.X + dx, c.Y + dy, c.Z + dz}]...)
			}
		}
	}
	return dst
}

// key returns the cell containing p.
func (g *Grid) key(p r3.Vec) cellKey {
	return cellKey{
		X: int(math.Floor(p.X / g.cellSize)),
		Y: int(math.Floor(p.Y / g.cellSize)),
		Z: int(math.Floor(p.Z / g.cellSize)),
	}
}
