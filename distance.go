package kdcount

import "math"

// minMaxDist is the distance capability consumed by the traversal: a
// point-to-point distance plus per-axis bounds between two axis-aligned
// rectangles.
//
// All values live in "aggregate space": the sum of per-coordinate |dx|^p
// terms for finite p (no final root), and the plain coordinate-wise
// maximum for p = inf. Query radii are transformed into the same space
// before a traversal starts, so the hot loops never take roots.
type minMaxDist interface {
	// distanceP returns the aggregate-space distance between x and y.
	// Once the running value exceeds upperBound the metric may return
	// immediately; the result is then only guaranteed to exceed
	// upperBound.
	distanceP(x, y []float64, p, upperBound float64) float64

	// intervalIntervalP returns the smallest and largest aggregate-space
	// contribution of axis k to the distance between a point of rect1 and
	// a point of rect2.
	intervalIntervalP(rect1, rect2 *rectangle, k int, p float64) (min, max float64)
}

// selectDist picks the metric specialization for a periodicity/exponent
// combination. The choice is made once per query; the traversal's inner
// loops never re-dispatch.
func selectDist(box []float64, p float64) minMaxDist {
	if box == nil {
		switch {
		case p == 2:
			return minkowskiP2{}
		case p == 1:
			return minkowskiP1{}
		case math.IsInf(p, 1):
			return minkowskiPInf{}
		default:
			return minkowskiPGen{}
		}
	}
	switch {
	case p == 2:
		return boxMinkowskiP2{box}
	case p == 1:
		return boxMinkowskiP1{box}
	case math.IsInf(p, 1):
		return boxMinkowskiPInf{box}
	default:
		return boxMinkowskiPGen{box}
	}
}

// intervalBounds returns the smallest and largest absolute difference
// along one axis between a point in [min1, max1] and a point in
// [min2, max2].
func intervalBounds(min1, max1, min2, max2 float64) (float64, float64) {
	lo := min1 - max2
	hi := max1 - min2
	return math.Max(lo, math.Max(-hi, 0)), math.Max(hi, -lo)
}

// wrapDiff reduces a signed coordinate difference to its distance from
// the nearest multiple of the box length. A non-positive length means the
// dimension does not wrap.
func wrapDiff(d, full float64) float64 {
	if full <= 0 {
		return math.Abs(d)
	}
	return math.Abs(d - full*math.Round(d/full))
}

// periodicBounds is intervalBounds on a circle of circumference full.
// The signed differences span [lo, hi]; the wrapped absolute difference
// is a triangle wave over that interval with zeros at multiples of full
// and peaks of full/2 halfway between, so the extremes sit either at an
// interior zero or peak or at the interval's ends.
func periodicBounds(min1, max1, min2, max2, full float64) (float64, float64) {
	if full <= 0 {
		return intervalBounds(min1, max1, min2, max2)
	}
	lo := min1 - max2
	hi := max1 - min2
	half := 0.5 * full
	if hi-lo >= full {
		return 0, half
	}

	// Shift so that lo lands in [-half, half); hi then lies below
	// 1.5*full, leaving 0 and full as the only reachable zeros and half
	// as the only reachable peak.
	shift := math.Floor((lo+half)/full) * full
	lo -= shift
	hi -= shift

	wlo := wrapDiff(lo, full)
	whi := wrapDiff(hi, full)

	var min, max float64
	if (lo <= 0 && 0 <= hi) || (lo <= full && full <= hi) {
		min = 0
	} else {
		min = math.Min(wlo, whi)
	}
	if lo <= half && half <= hi {
		max = half
	} else {
		max = math.Max(wlo, whi)
	}
	return min, max
}

// --- non-periodic specializations ---

// minkowskiP2 is the Euclidean specialization; aggregate space is squared
// distance.
type minkowskiP2 struct{}

func (minkowskiP2) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		d := x[i] - y[i]
		s += d * d
		if s > upperBound {
			return s
		}
	}
	return s
}

func (minkowskiP2) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	lo, hi := intervalBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k])
	return lo * lo, hi * hi
}

// minkowskiP1 is the city-block specialization; aggregate space equals
// true distance.
type minkowskiP1 struct{}

func (minkowskiP1) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		s += math.Abs(x[i] - y[i])
		if s > upperBound {
			return s
		}
	}
	return s
}

func (minkowskiP1) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	return intervalBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k])
}

// minkowskiPInf is the coordinate-wise maximum; aggregate space equals
// true distance and axes combine by max instead of sum.
type minkowskiPInf struct{}

func (minkowskiPInf) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		if d := math.Abs(x[i] - y[i]); d > s {
			s = d
			if s > upperBound {
				return s
			}
		}
	}
	return s
}

func (minkowskiPInf) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	return intervalBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k])
}

// minkowskiPGen handles general finite p >= 1.
type minkowskiPGen struct{}

func (minkowskiPGen) distanceP(x, y []float64, p, upperBound float64) float64 {
	var s float64
	for i := range x {
		s += math.Pow(math.Abs(x[i]-y[i]), p)
		if s > upperBound {
			return s
		}
	}
	return s
}

func (minkowskiPGen) intervalIntervalP(rect1, rect2 *rectangle, k int, p float64) (float64, float64) {
	lo, hi := intervalBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k])
	return math.Pow(lo, p), math.Pow(hi, p)
}

// --- periodic specializations ---

type boxMinkowskiP2 struct{ box []float64 }

func (b boxMinkowskiP2) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		d := wrapDiff(x[i]-y[i], b.box[i])
		s += d * d
		if s > upperBound {
			return s
		}
	}
	return s
}

func (b boxMinkowskiP2) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	lo, hi := periodicBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k], b.box[k])
	return lo * lo, hi * hi
}

type boxMinkowskiP1 struct{ box []float64 }

func (b boxMinkowskiP1) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		s += wrapDiff(x[i]-y[i], b.box[i])
		if s > upperBound {
			return s
		}
	}
	return s
}

func (b boxMinkowskiP1) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	return periodicBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k], b.box[k])
}

type boxMinkowskiPInf struct{ box []float64 }

func (b boxMinkowskiPInf) distanceP(x, y []float64, _, upperBound float64) float64 {
	var s float64
	for i := range x {
		if d := wrapDiff(x[i]-y[i], b.box[i]); d > s {
			s = d
			if s > upperBound {
				return s
			}
		}
	}
	return s
}

func (b boxMinkowskiPInf) intervalIntervalP(rect1, rect2 *rectangle, k int, _ float64) (float64, float64) {
	return periodicBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k], b.box[k])
}

type boxMinkowskiPGen struct{ box []float64 }

func (b boxMinkowskiPGen) distanceP(x, y []float64, p, upperBound float64) float64 {
	var s float64
	for i := range x {
		s += math.Pow(wrapDiff(x[i]-y[i], b.box[i]), p)
		if s > upperBound {
			return s
		}
	}
	return s
}

func (b boxMinkowskiPGen) intervalIntervalP(rect1, rect2 *rectangle, k int, p float64) (float64, float64) {
	lo, hi := periodicBounds(rect1.mins[k], rect1.maxes[k], rect2.mins[k], rect2.maxes[k], b.box[k])
	return math.Pow(lo, p), math.Pow(hi, p)
}
