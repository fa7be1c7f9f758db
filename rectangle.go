package kdcount

import "math"

// rectangle is an axis-aligned box. The tracker mutates its copies in
// place while descending and restores them on pop.
type rectangle struct {
	mins, maxes []float64
}

func newRectangle(mins, maxes []float64) rectangle {
	r := rectangle{
		mins:  make([]float64, len(mins)),
		maxes: make([]float64, len(maxes)),
	}
	copy(r.mins, mins)
	copy(r.maxes, maxes)
	return r
}

func (r *rectangle) dims() int { return len(r.mins) }

const (
	sideLess = iota
	sideGreater
)

// trackerItem saves everything a push changed: which rectangle, the axis,
// the axis extents, and both distance bounds.
type trackerItem struct {
	which                    int
	splitDim                 int
	minDistance, maxDistance float64
	minAlongDim, maxAlongDim float64
}

// rectRectDistanceTracker maintains the tightest known aggregate-space
// interval [minDistance, maxDistance] on the distance between a point of
// rect1 and a point of rect2 as the rectangles are split during a dual
// descent. For finite p a push adjusts the bounds in O(1) by swapping the
// clipped axis' contribution; for p = inf the bounds are a max over axes
// and are recomputed. Pops restore the exact saved state, so rounding
// never accumulates across siblings.
type rectRectDistanceTracker struct {
	dist         minMaxDist
	p            float64
	infP         bool
	rect1, rect2 rectangle

	minDistance, maxDistance float64

	stack []trackerItem
}

// newRectRectDistanceTracker seeds the bounds from the two root
// rectangles; the rectangles are copied and owned by the tracker.
func newRectRectDistanceTracker(dist minMaxDist, rect1, rect2 rectangle, p float64) *rectRectDistanceTracker {
	t := &rectRectDistanceTracker{
		dist:  dist,
		p:     p,
		infP:  math.IsInf(p, 1),
		rect1: rect1,
		rect2: rect2,
		stack: make([]trackerItem, 0, 64),
	}
	t.minDistance, t.maxDistance = t.bounds()
	return t
}

// bounds recomputes the aggregate-space distance interval from scratch.
func (t *rectRectDistanceTracker) bounds() (float64, float64) {
	var min, max float64
	for k := 0; k < t.rect1.dims(); k++ {
		lo, hi := t.dist.intervalIntervalP(&t.rect1, &t.rect2, k, t.p)
		if t.infP {
			min = math.Max(min, lo)
			max = math.Max(max, hi)
		} else {
			min += lo
			max += hi
		}
	}
	return min, max
}

func (t *rectRectDistanceTracker) pushLess(which int, node *Node) {
	t.push(which, sideLess, node.SplitDim, node.SplitVal)
}

func (t *rectRectDistanceTracker) pushGreater(which int, node *Node) {
	t.push(which, sideGreater, node.SplitDim, node.SplitVal)
}

func (t *rectRectDistanceTracker) push(which, side, splitDim int, splitVal float64) {
	rect := &t.rect1
	if which == 2 {
		rect = &t.rect2
	}

	t.stack = append(t.stack, trackerItem{
		which:       which,
		splitDim:    splitDim,
		minDistance: t.minDistance,
		maxDistance: t.maxDistance,
		minAlongDim: rect.mins[splitDim],
		maxAlongDim: rect.maxes[splitDim],
	})

	if !t.infP {
		lo, hi := t.dist.intervalIntervalP(&t.rect1, &t.rect2, splitDim, t.p)
		t.minDistance -= lo
		t.maxDistance -= hi
	}

	if side == sideLess {
		rect.maxes[splitDim] = splitVal
	} else {
		rect.mins[splitDim] = splitVal
	}

	if !t.infP {
		lo, hi := t.dist.intervalIntervalP(&t.rect1, &t.rect2, splitDim, t.p)
		t.minDistance += lo
		t.maxDistance += hi
	} else {
		t.minDistance, t.maxDistance = t.bounds()
	}
}

func (t *rectRectDistanceTracker) pop() {
	item := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	t.minDistance = item.minDistance
	t.maxDistance = item.maxDistance

	rect := &t.rect1
	if item.which == 2 {
		rect = &t.rect2
	}
	rect.mins[item.splitDim] = item.minAlongDim
	rect.maxes[item.splitDim] = item.maxAlongDim
}
