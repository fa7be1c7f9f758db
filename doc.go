// Package kdcount implements dual-tree pair counting over k-d trees.
//
// Given two trees built over point sets in R^m and a sorted slice of query
// radii, it computes for every radius the (optionally weighted) number of
// ordered pairs whose Minkowski-p distance does not exceed that radius.
// This is the core primitive behind two-point correlation functions and
// radial distribution histograms.
//
// Basic usage:
//
//	self, err := kdcount.NewTree(dataA, nA, dims, 16)
//	other, err := kdcount.NewTree(dataB, nB, dims, 16)
//	r := []float64{0.1, 0.2, 0.5, 1.0}
//	results := make([]int64, len(r))
//	err = kdcount.CountNeighbors(self, other, r, results, 2, 1.0)
//	// results[l] is the number of pairs (i, j) with d(x_i, y_j) <= r[l]
//
// # Metrics
//
// Distances are Minkowski-p for p >= 1, including p = math.Inf(1) for the
// coordinate-wise maximum. Trees built with NewPeriodicTree measure each
// coordinate difference modulo the box length, taking the shorter way
// around.
//
// # Weighted counting
//
// CountNeighborsWeighted accumulates the product of per-point weights
// instead of counting pairs. Per-node weight sums, produced by
// Tree.BuildWeights, let the traversal credit whole subtree pairs without
// visiting individual points.
//
// # Accumulation strategy
//
// The traversal normally adds each pair to every radius bucket covering it.
// When a node pair spans many radii relative to its point count, it switches
// to binned accumulation: each pair lands in exactly one annulus and a
// prefix sum restores the cumulative form on the way out. The convolveThresh
// parameter tunes the crossover; results are independent of it (up to
// floating-point rounding in weighted mode).
//
// Trees are immutable once built and safe to share across goroutines; a
// query writes only to its own results slice, so concurrent queries over
// the same trees need no locking as long as each owns its results.
package kdcount
