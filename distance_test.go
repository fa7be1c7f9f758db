package kdcount

import (
	"math"
	"math/rand"
	"testing"
)

// naiveAggregate computes the aggregate-space distance with no
// short-circuit, as an independent reference.
func naiveAggregate(x, y, box []float64, p float64) float64 {
	var s float64
	for i := range x {
		d := math.Abs(x[i] - y[i])
		if box != nil {
			d = wrapDiff(x[i]-y[i], box[i])
		}
		switch {
		case math.IsInf(p, 1):
			s = math.Max(s, d)
		case p == 2:
			s += d * d
		default:
			s += math.Pow(d, p)
		}
	}
	return s
}

func TestDistanceP_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	box := []float64{10, 10, 10}
	ps := []float64{1, 2, 3.5, math.Inf(1)}

	for trial := 0; trial < 200; trial++ {
		x := []float64{rng.Float64() * 10, rng.Float64() * 10, rng.Float64() * 10}
		y := []float64{rng.Float64() * 10, rng.Float64() * 10, rng.Float64() * 10}
		for _, p := range ps {
			for _, b := range [][]float64{nil, box} {
				dist := selectDist(b, p)
				got := dist.distanceP(x, y, p, math.Inf(1))
				want := naiveAggregate(x, y, b, p)
				if math.Abs(got-want) > 1e-12*math.Max(1, want) {
					t.Fatalf("p=%v box=%v: distanceP = %v, want %v (x=%v y=%v)", p, b != nil, got, want, x, y)
				}
			}
		}
	}
}

func TestDistanceP_ShortCircuit(t *testing.T) {
	// The first coordinate alone exceeds the bound; whatever comes back
	// must still exceed it so the caller's pruning stays valid.
	x := []float64{100, 0, 0}
	y := []float64{0, 0, 0}
	for _, p := range []float64{1, 2, 3.5, math.Inf(1)} {
		dist := selectDist(nil, p)
		got := dist.distanceP(x, y, p, 1.0)
		if got <= 1.0 {
			t.Errorf("p=%v: short-circuited value %v does not exceed the bound", p, got)
		}
	}
}

func TestDistanceP_WithinBoundIsExact(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{2, 0, 1}
	for _, p := range []float64{1, 2, 3.5, math.Inf(1)} {
		dist := selectDist(nil, p)
		want := naiveAggregate(x, y, nil, p)
		got := dist.distanceP(x, y, p, want+1)
		if got != want {
			t.Errorf("p=%v: distanceP below bound = %v, want exact %v", p, got, want)
		}
	}
}

func TestWrapDiff(t *testing.T) {
	cases := []struct {
		d, full, want float64
	}{
		{9, 10, 1},
		{-9, 10, 1},
		{5, 10, 5},
		{15, 10, 5},
		{0, 10, 0},
		{10, 10, 0},
		{-3, 0, 3}, // non-periodic dimension
		{23, 10, 3},
	}
	for _, c := range cases {
		if got := wrapDiff(c.d, c.full); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("wrapDiff(%v, %v) = %v, want %v", c.d, c.full, got, c.want)
		}
	}
}

func TestIntervalBounds(t *testing.T) {
	cases := []struct {
		min1, max1, min2, max2 float64
		wantMin, wantMax       float64
	}{
		{0, 1, 2, 3, 1, 3},   // disjoint, rect2 to the right
		{2, 3, 0, 1, 1, 3},   // disjoint, rect2 to the left
		{0, 2, 1, 3, 0, 3},   // overlapping
		{0, 0, 5, 5, 5, 5},   // two points
		{0, 10, 4, 6, 0, 6},  // containment
	}
	for _, c := range cases {
		gotMin, gotMax := intervalBounds(c.min1, c.max1, c.min2, c.max2)
		if gotMin != c.wantMin || gotMax != c.wantMax {
			t.Errorf("intervalBounds(%v,%v,%v,%v) = (%v, %v), want (%v, %v)",
				c.min1, c.max1, c.min2, c.max2, gotMin, gotMax, c.wantMin, c.wantMax)
		}
	}
}

func TestPeriodicBounds_KnownCases(t *testing.T) {
	cases := []struct {
		min1, max1, min2, max2, full float64
		wantMin, wantMax             float64
	}{
		{0, 0, 9, 9, 10, 1, 1},    // wrap is shorter
		{0, 0, 4, 4, 10, 4, 4},    // direct is shorter
		{0, 10, 0, 10, 10, 0, 5},  // whole box vs whole box
		{0, 1, 2, 3, 10, 1, 3},    // narrow, no wrap involved
		{0, 1, 8, 9, 10, 1, 3},    // narrow, wrapped
		{0, 0, 5, 5, 10, 5, 5},    // exactly opposite
		{0, 1, 2, 3, 0, 1, 3},     // non-periodic dimension
		{2, 2, 2, 2, 10, 0, 0},    // coincident points
		{0, 6, 0, 6, 10, 0, 5},    // span wider than half the box
	}
	for _, c := range cases {
		gotMin, gotMax := periodicBounds(c.min1, c.max1, c.min2, c.max2, c.full)
		if math.Abs(gotMin-c.wantMin) > 1e-12 || math.Abs(gotMax-c.wantMax) > 1e-12 {
			t.Errorf("periodicBounds(%v,%v,%v,%v,%v) = (%v, %v), want (%v, %v)",
				c.min1, c.max1, c.min2, c.max2, c.full, gotMin, gotMax, c.wantMin, c.wantMax)
		}
	}
}

func TestPeriodicBounds_AgainstSampling(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const full = 10.0
	const steps = 60

	for trial := 0; trial < 300; trial++ {
		a := rng.Float64() * full
		b := a + rng.Float64()*(full-a)
		c := rng.Float64() * full
		d := c + rng.Float64()*(full-c)

		boundMin, boundMax := periodicBounds(a, b, c, d, full)

		sampleMin, sampleMax := math.Inf(1), math.Inf(-1)
		for i := 0; i <= steps; i++ {
			u := a + (b-a)*float64(i)/steps
			for j := 0; j <= steps; j++ {
				v := c + (d-c)*float64(j)/steps
				w := wrapDiff(u-v, full)
				sampleMin = math.Min(sampleMin, w)
				sampleMax = math.Max(sampleMax, w)
			}
		}

		// The analytic bounds must contain every sampled distance and be
		// nearly attained by the grid.
		if boundMin > sampleMin+1e-9 || boundMax < sampleMax-1e-9 {
			t.Fatalf("bounds (%v, %v) do not contain sampled (%v, %v) for [%v,%v] vs [%v,%v]",
				boundMin, boundMax, sampleMin, sampleMax, a, b, c, d)
		}
		slack := (b - a + d - c) / steps
		if sampleMin-boundMin > slack+1e-9 || boundMax-sampleMax > slack+1e-9 {
			t.Fatalf("bounds (%v, %v) too loose against sampled (%v, %v) for [%v,%v] vs [%v,%v]",
				boundMin, boundMax, sampleMin, sampleMax, a, b, c, d)
		}
	}
}
