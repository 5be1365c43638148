package contact

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sphere is a ball (or a disk when the simulation is planar).
type Sphere struct {
	Index  int
	Center r3.Vec
	Radius float64
}

// Plane is an infinite half-space boundary with outward unit normal.
type Plane struct {
	Index  int
	Point  r3.Vec
	Normal r3.Vec
}

// Detect returns every sphere–sphere and plane–sphere pair whose gap is
// below dmax, ordered by (I, J). Large sphere sets are paired through a
// hash grid.
func Detect(spheres []Sphere, planes []Plane, dmax float64) []Contact {
	var out []Contact
	if len(spheres) >= gridThreshold {
		out = gridPairs(spheres, dmax, out)
	} else {
		for a := 0; a < len(spheres); a++ {
			for b := a + 1; b < len(spheres); b++ {
				if c, ok := spherePair(spheres[a], spheres[b], dmax); ok {
					out = append(out, c)
				}
			}
		}
	}

	for _, p := range planes {
		n := r3.Unit(p.Normal)
		for _, s := range spheres {
			height := r3.Dot(r3.Sub(s.Center, p.Point), n)
			gap := height - s.Radius
			if gap >= dmax {
				continue
			}
			out = append(out, Contact{
				I:        p.Index,
				J:        s.Index,
				Normal:   n,
				Distance: gap,
				PI:       r3.Sub(s.Center, r3.Scale(height, n)),
				PJ:       r3.Sub(s.Center, r3.Scale(s.Radius, n)),
			})
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}

// spherePair builds the contact between two spheres, I being the lower index.
func spherePair(si, sj Sphere, dmax float64) (Contact, bool) {
	if si.Index > sj.Index {
		si, sj = sj, si
	}
	delta := r3.Sub(sj.Center, si.Center)
	dist := r3.Norm(delta)
	gap := dist - si.Radius - sj.Radius
	if gap >= dmax || dist == 0 {
		return Contact{}, false
	}
	n := r3.Scale(1/dist, delta)
	return Contact{
		I:        si.Index,
		J:        sj.Index,
		Normal:   n,
		Distance: gap,
		PI:       r3.Add(si.Center, r3.Scale(si.Radius, n)),
		PJ:       r3.Sub(sj.Center, r3.Scale(sj.Radius, n)),
	}, true
}

// gridPairs finds sphere pairs through a grid whose cells span the largest
// possible contact distance.
func gridPairs(spheres []Sphere, dmax float64, out []Contact) []Contact {
	var rmax float64
	for _, s := range spheres {
		rmax = max(rmax, s.Radius)
	}
	grid := NewGrid(2*rmax + max(dmax, 0) + 1e-12)
	for a, s := range spheres {
		grid.Insert(a, s.Center)
	}

	var neighbors []int
	for a, s := range spheres {
		neighbors = grid.QueryInto(neighbors[:0], s.Center)
		for _, b := range neighbors {
			if b <= a {
				continue
			}
			if c, ok := spherePair(s, spheres[b], dmax); ok {
				out = append(out, c)
			}
		}
	}
	return out
}
