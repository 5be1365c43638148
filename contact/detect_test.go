package contact

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestDetectSpherePair(t *testing.T) {
	spheres := []Sphere{
		{Index: 3, Center: r3.Vec{X: 2.5}, Radius: 1},
		{Index: 1, Center: r3.Vec{}, Radius: 1},
	}
	contacts := Detect(spheres, nil, 1)
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(contacts))
	}
	c := contacts[0]
	if c.I != 1 || c.J != 3 {
		t.Errorf("expected pair (1,3), got (%d,%d)", c.I, c.J)
	}
	if math.Abs(c.Distance-0.5) > 1e-12 {
		t.Errorf("expected gap 0.5, got %v", c.Distance)
	}
	if c.Normal != (r3.Vec{X: 1}) {
		t.Errorf("normal should point from I to J, got %v", c.Normal)
	}
	if c.PI != (r3.Vec{X: 1}) || c.PJ != (r3.Vec{X: 1.5}) {
		t.Errorf("unexpected contact points %v %v", c.PI, c.PJ)
	}
	if c.Pair() != (Pair{A: 1, B: 3}) {
		t.Errorf("unexpected pair %v", c.Pair())
	}
}

func TestDetectPlaneAndCutoff(t *testing.T) {
	planes := []Plane{{Index: 0, Point: r3.Vec{}, Normal: r3.Vec{Z: 2}}}
	spheres := []Sphere{
		{Index: 1, Center: r3.Vec{Z: 1}, Radius: 1},
		{Index: 2, Center: r3.Vec{X: 10, Z: 5}, Radius: 1},
	}
	contacts := Detect(spheres, planes, 0.5)
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact within dmax, got %d", len(contacts))
	}
	c := contacts[0]
	if c.I != 0 || c.J != 1 || c.Distance != 0 {
		t.Errorf("unexpected plane contact %+v", c)
	}
	if c.Normal != (r3.Vec{Z: 1}) {
		t.Errorf("plane normal should be normalised, got %v", c.Normal)
	}
	if !c.Involves(1) || c.Involves(2) {
		t.Error("Involves should test the active index range")
	}
}

func TestDetect_GridMatchesPairwiseScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	spheres := make([]Sphere, 2*gridThreshold)
	for i := range spheres {
		spheres[i] = Sphere{
			Index:  len(spheres) - i,
			Center: r3.Vec{X: rng.Float64() * 12, Y: rng.Float64() * 12, Z: rng.Float64()*12 - 6},
			Radius: 0.5 + rng.Float64(),
		}
	}

	want := 0
	for a := range spheres {
		for b := a + 1; b < len(spheres); b++ {
			if _, ok := spherePair(spheres[a], spheres[b], 0.3); ok {
				want++
			}
		}
	}
	if want == 0 {
		t.Fatal("test layout has no contacts")
	}

	got := Detect(spheres, nil, 0.3)
	if len(got) != want {
		t.Fatalf("grid found %d contacts, pairwise scan %d", len(got), want)
	}
	for k := 1; k < len(got); k++ {
		prev, cur := got[k-1], got[k]
		if prev.I > cur.I || (prev.I == cur.I && prev.J >= cur.J) {
			t.Fatalf("contacts not ordered at %d: %v then %v", k, prev.Pair(), cur.Pair())
		}
	}
}

func TestGrid_QueryNeighbors(t *testing.T) {
	g := NewGrid(1)
	g.Insert(0, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	g.Insert(1, r3.Vec{X: 1.5, Y: 0.5, Z: 0.5})
	g.Insert(2, r3.Vec{X: 3.5, Y: 0.5, Z: 0.5})
	g.Insert(3, r3.Vec{X: -0.5, Y: -0.5, Z: -0.5})

	got := g.QueryInto(nil, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	seen := map[int]bool{}
	for _, i := range got {
		seen[i] = true
	}
	if !seen[0] || !seen[1] || !seen[3] || seen[2] {
		t.Errorf("neighbors = %v, want 0, 1 and 3", got)
	}

	g.Clear()
	if got := g.QueryInto(nil, r3.Vec{}); len(got) != 0 {
		t.Errorf("cleared grid returned %v", got)
	}
}
