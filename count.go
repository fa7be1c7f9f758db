package kdcount

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrPrecondition is wrapped by every error returned for invalid query
// inputs. When a count function returns it, no result element has been
// written.
var ErrPrecondition = errors.New("kdcount: precondition violated")

// firstGE returns the smallest l in [start, end) with r[l] >= v, or end
// if there is none. r[start:end] must be sorted.
func firstGE(v float64, r []float64, start, end int) int {
	for start < end {
		mid := int(uint(start+end) >> 1)
		if r[mid] >= v {
			end = mid
		} else {
			start = mid + 1
		}
	}
	return start
}

// firstGT returns the smallest l in [start, end) with r[l] > v, or end
// if there is none. r[start:end] must be sorted.
func firstGT(v float64, r []float64, start, end int) int {
	for start < end {
		mid := int(uint(start+end) >> 1)
		if r[mid] > v {
			end = mid
		} else {
			start = mid + 1
		}
	}
	return start
}

// Weights carries the optional per-point and per-node weights of a
// weighted query. Point weights are indexed by original point index; node
// weights are indexed by node position (see Tree.BuildWeights). A side
// with nil point weights contributes a factor of 1 per point. The arrays
// are borrowed, not copied.
type Weights struct {
	SelfWeights      []float64
	OtherWeights     []float64
	SelfNodeWeights  []float64
	OtherNodeWeights []float64
}

// counter is the result element type: pair counts for unweighted queries,
// weight sums for weighted ones.
type counter interface {
	~int64 | ~float64
}

// weightPolicy abstracts how much a subtree pair and a point pair
// contribute to the result. The traversal is instantiated once per policy
// so the unweighted hot path pays nothing for the abstraction.
type weightPolicy[R counter] interface {
	// nodeWeight is the aggregate weight of every pair formed from the
	// two subtrees. id1 and id2 are the nodes' positions in their trees.
	nodeWeight(n1, n2 *Node, id1, id2 int) R
	// pairWeight is the weight of the single pair (i, j) of original
	// point indices.
	pairWeight(i, j int) R
}

type unweightedPolicy struct{}

func (unweightedPolicy) nodeWeight(n1, n2 *Node, _, _ int) int64 {
	return int64(n1.Children) * int64(n2.Children)
}

func (unweightedPolicy) pairWeight(_, _ int) int64 { return 1 }

type weightedPolicy struct {
	selfWeights, otherWeights         []float64
	selfNodeWeights, otherNodeWeights []float64
}

func (w weightedPolicy) nodeWeight(n1, n2 *Node, id1, id2 int) float64 {
	w1 := float64(n1.Children)
	if w.selfNodeWeights != nil {
		w1 = w.selfNodeWeights[id1]
	}
	w2 := float64(n2.Children)
	if w.otherNodeWeights != nil {
		w2 = w.otherNodeWeights[id2]
	}
	return w1 * w2
}

func (w weightedPolicy) pairWeight(i, j int) float64 {
	w1 := 1.0
	if w.selfWeights != nil {
		w1 = w.selfWeights[i]
	}
	w2 := 1.0
	if w.otherWeights != nil {
		w2 = w.otherWeights[j]
	}
	return w1 * w2
}

// countQuery is the per-invocation state shared by every frame of one
// dual-tree descent.
type countQuery[R counter, W weightPolicy[R]] struct {
	self, other    *Tree
	weights        W
	r              []float64 // aggregate-space radii, sorted
	dist           minMaxDist
	p              float64
	convolveThresh float64
}

// traverse visits the pair (node1, node2) with the active radius window
// [start, end). In cumulative mode results[l] accumulates pairs with
// d <= r[l]; in convolve (binned) mode results[l] accumulates pairs whose
// distance falls in the annulus ending at r[l], and the frame that
// switched modes folds the bins back with a prefix sum before returning.
func (q *countQuery[R, W]) traverse(node1, node2, start, end int, results []R, tracker *rectRectDistanceTracker, useConvolve bool) {
	n1 := &q.self.nodes[node1]
	n2 := &q.other.nodes[node2]

	// Tighten the window: radii below the lower bound cannot be reached
	// by any pair in here, radii at or above the upper bound are covered
	// by every pair in here.
	oldEnd := end
	start = firstGE(tracker.minDistance, q.r, start, end)
	end = firstGE(tracker.maxDistance, q.r, start, end)

	// With many radii still open relative to the pair count, binned
	// accumulation is cheaper: one write per pair instead of one per pair
	// per radius. Once switched, all descendants stay binned.
	oldUseConvolve := useConvolve
	if !useConvolve && float64(end-start) > q.convolveThresh*float64(n1.Children)*float64(n2.Children) {
		useConvolve = true
	}

	oldResults := results
	if useConvolve != oldUseConvolve {
		results = make([]R, end+1)
	}

	var probeFurther bool
	if !oldUseConvolve {
		if end < oldEnd {
			nw := q.weights.nodeWeight(n1, n2, node1, node2)
			for l := end; l < oldEnd; l++ {
				oldResults[l] += nw
			}
		}
		probeFurther = end-start > 0
	} else {
		// The whole pair lands in one annulus.
		if end == start {
			results[start] += q.weights.nodeWeight(n1, n2, node1, node2)
		}
		probeFurther = end-start > 0
	}

	if probeFurther {
		switch {
		case n1.IsLeaf() && n2.IsLeaf():
			q.bruteForce(n1, n2, start, end, results, tracker, useConvolve)

		case n1.IsLeaf():
			tracker.pushLess(2, n2)
			q.traverse(node1, n2.Less, start, end, results, tracker, useConvolve)
			tracker.pop()

			tracker.pushGreater(2, n2)
			q.traverse(node1, n2.Greater, start, end, results, tracker, useConvolve)
			tracker.pop()

		case n2.IsLeaf():
			tracker.pushLess(1, n1)
			q.traverse(n1.Less, node2, start, end, results, tracker, useConvolve)
			tracker.pop()

			tracker.pushGreater(1, n1)
			q.traverse(n1.Greater, node2, start, end, results, tracker, useConvolve)
			tracker.pop()

		default:
			tracker.pushLess(1, n1)
			tracker.pushLess(2, n2)
			q.traverse(n1.Less, n2.Less, start, end, results, tracker, useConvolve)
			tracker.pop()

			tracker.pushGreater(2, n2)
			q.traverse(n1.Less, n2.Greater, start, end, results, tracker, useConvolve)
			tracker.pop()
			tracker.pop()

			tracker.pushGreater(1, n1)
			tracker.pushLess(2, n2)
			q.traverse(n1.Greater, n2.Less, start, end, results, tracker, useConvolve)
			tracker.pop()

			tracker.pushGreater(2, n2)
			q.traverse(n1.Greater, n2.Greater, start, end, results, tracker, useConvolve)
			tracker.pop()
			tracker.pop()
		}
	}

	if useConvolve != oldUseConvolve {
		// Prefix sum turns the annulus bins into cumulative counts of
		// everything found below this frame; bin `end` holds pairs beyond
		// r[end-1] that the fast path above already credited, so it is
		// dropped.
		for l := start; l < end; l++ {
			results[l+1] += results[l]
		}
		for l := start; l < end; l++ {
			oldResults[l] += results[l]
		}
	}
}

// bruteForce runs the leaf-by-leaf Cartesian product. Cheaper to test
// each distance against the open radii directly than to collect and sort
// distances first.
func (q *countQuery[R, W]) bruteForce(n1, n2 *Node, start, end int, results []R, tracker *rectRectDistanceTracker, useConvolve bool) {
	sdata, sindices := q.self.data, q.self.indices
	odata, oindices := q.other.data, q.other.indices
	m := q.self.m
	p := q.p
	tmd := tracker.maxDistance

	for i := n1.StartIdx; i < n1.EndIdx; i++ {
		si := sindices[i]
		x := sdata[si*m : si*m+m]
		for j := n2.StartIdx; j < n2.EndIdx; j++ {
			oj := oindices[j]
			y := odata[oj*m : oj*m+m]
			d := q.dist.distanceP(x, y, p, tmd)
			if !useConvolve {
				for l := start; l < end; l++ {
					if d <= q.r[l] {
						results[l] += q.weights.pairWeight(si, oj)
					}
				}
			} else {
				l := firstGE(d, q.r, start, end)
				results[l] += q.weights.pairWeight(si, oj)
			}
		}
	}
}

// CountNeighbors adds, for every l, the number of ordered pairs
// (i in self, j in other) with Minkowski-p distance <= r[l] to results[l].
// r must be sorted and non-negative; results must have the same length as
// r and is normally zeroed by the caller. p is 1, 2, a finite value >= 1,
// or math.Inf(1). convolveThresh tunes when the traversal switches to
// binned accumulation; 1 is a reasonable default and the counts do not
// depend on it.
func CountNeighbors(self, other *Tree, r []float64, results []int64, p, convolveThresh float64) error {
	if err := validateQuery(self, other, r, len(results), p, convolveThresh); err != nil {
		return err
	}
	runCount(self, other, unweightedPolicy{}, r, results, p, convolveThresh)
	return nil
}

// CountNeighborsWeighted adds, for every l, the sum of
// w.SelfWeights[i] * w.OtherWeights[j] over ordered pairs with distance
// <= r[l] to results[l]. Either side of w may be nil, contributing a
// factor of 1 per point; a side with point weights must also carry node
// weights consistent with them (see Tree.BuildWeights). A nil w counts
// pairs like CountNeighbors, accumulated in float64.
func CountNeighborsWeighted(self, other *Tree, w *Weights, r []float64, results []float64, p, convolveThresh float64) error {
	if err := validateQuery(self, other, r, len(results), p, convolveThresh); err != nil {
		return err
	}
	if w == nil {
		w = &Weights{}
	}
	if err := validateWeights(self, w.SelfWeights, w.SelfNodeWeights, "self"); err != nil {
		return err
	}
	if err := validateWeights(other, w.OtherWeights, w.OtherNodeWeights, "other"); err != nil {
		return err
	}
	policy := weightedPolicy{
		selfWeights:      w.SelfWeights,
		otherWeights:     w.OtherWeights,
		selfNodeWeights:  w.SelfNodeWeights,
		otherNodeWeights: w.OtherNodeWeights,
	}
	runCount(self, other, policy, r, results, p, convolveThresh)
	return nil
}

func runCount[R counter, W weightPolicy[R]](self, other *Tree, w W, r []float64, results []R, p, convolveThresh float64) {
	if len(r) == 0 || self.n == 0 || other.n == 0 {
		return
	}
	dist := selectDist(self.boxsize, p)
	tracker := newRectRectDistanceTracker(dist,
		newRectangle(self.mins, self.maxes),
		newRectangle(other.mins, other.maxes), p)
	q := &countQuery[R, W]{
		self:           self,
		other:          other,
		weights:        w,
		r:              aggregateRadii(r, p),
		dist:           dist,
		p:              p,
		convolveThresh: convolveThresh,
	}
	q.traverse(0, 0, 0, len(r), results, tracker, false)
}

// aggregateRadii raises the radii into the metric's aggregate space so
// the traversal compares them against rootless distances.
func aggregateRadii(r []float64, p float64) []float64 {
	rp := make([]float64, len(r))
	switch {
	case p == 1 || math.IsInf(p, 1):
		copy(rp, r)
	case p == 2:
		floats.MulTo(rp, r, r)
	default:
		for i, v := range r {
			rp[i] = math.Pow(v, p)
		}
	}
	return rp
}

func validateQuery(self, other *Tree, r []float64, nresults int, p, convolveThresh float64) error {
	if self == nil || other == nil {
		return fmt.Errorf("%w: nil tree", ErrPrecondition)
	}
	if self.m != other.m {
		return fmt.Errorf("%w: trees have dimensionality %d and %d", ErrPrecondition, self.m, other.m)
	}
	if (self.boxsize == nil) != (other.boxsize == nil) {
		return fmt.Errorf("%w: one tree is periodic and the other is not", ErrPrecondition)
	}
	if self.boxsize != nil {
		for k := range self.boxsize {
			if self.boxsize[k] != other.boxsize[k] {
				return fmt.Errorf("%w: periodic boxes differ along dimension %d (%v vs %v)",
					ErrPrecondition, k, self.boxsize[k], other.boxsize[k])
			}
		}
	}
	if nresults != len(r) {
		return fmt.Errorf("%w: %d results for %d radii", ErrPrecondition, nresults, len(r))
	}
	for l, v := range r {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: r[%d] is NaN", ErrPrecondition, l)
		}
		if l == 0 && v < 0 {
			return fmt.Errorf("%w: r[0] = %v, must be >= 0", ErrPrecondition, v)
		}
		if l > 0 && v < r[l-1] {
			return fmt.Errorf("%w: r is not non-decreasing at index %d", ErrPrecondition, l)
		}
	}
	if math.IsNaN(p) || p < 1 {
		return fmt.Errorf("%w: p = %v, must be >= 1 or +Inf", ErrPrecondition, p)
	}
	if math.IsNaN(convolveThresh) || convolveThresh <= 0 {
		return fmt.Errorf("%w: convolveThresh = %v, must be > 0", ErrPrecondition, convolveThresh)
	}
	return nil
}

// validateWeights checks one side of a weight bundle: point weights and
// node weights come together, sizes match the tree, and every node weight
// agrees with the sum over its subtree.
func validateWeights(tree *Tree, weights, nodeWeights []float64, side string) error {
	if weights == nil {
		if nodeWeights != nil {
			return fmt.Errorf("%w: %s node weights supplied without point weights", ErrPrecondition, side)
		}
		return nil
	}
	if len(weights) != tree.n {
		return fmt.Errorf("%w: %d %s weights for %d points", ErrPrecondition, len(weights), side, tree.n)
	}
	if nodeWeights == nil {
		return fmt.Errorf("%w: %s point weights require node weights", ErrPrecondition, side)
	}
	if len(nodeWeights) != len(tree.nodes) {
		return fmt.Errorf("%w: %d %s node weights for %d nodes", ErrPrecondition, len(nodeWeights), side, len(tree.nodes))
	}
	expected, err := tree.BuildWeights(weights)
	if err != nil {
		return err
	}
	for id := range expected {
		if diff := math.Abs(nodeWeights[id] - expected[id]); diff > 1e-8*math.Max(1, math.Abs(expected[id])) {
			return fmt.Errorf("%w: %s node weight at node %d is %v, expected %v",
				ErrPrecondition, side, id, nodeWeights[id], expected[id])
		}
	}
	return nil
}
