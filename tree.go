package kdcount

import (
	"fmt"
	"math"
	"sort"
)

// Node is a single node of a Tree. Leaves carry a contiguous range
// [StartIdx, EndIdx) into the tree's index permutation; inner nodes carry
// the split plane and the indices of their two children in the tree's
// node slice.
type Node struct {
	StartIdx, EndIdx int
	Children         int     // number of points in the subtree
	SplitDim         int     // -1 for leaves
	SplitVal         float64 // points left of the plane go to Less
	Less, Greater    int     // child node indices; unused for leaves
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return n.SplitDim == -1 }

// Tree is an immutable KD-tree over points in R^m. Points are stored in a
// flat row-major array and addressed through an index permutation so that
// every node owns a contiguous range of tree positions.
type Tree struct {
	data     []float64 // flat row-major point data (n * m)
	n        int       // number of points
	m        int       // dimensionality
	leafSize int
	indices  []int     // permutation: tree-order position -> original index
	mins     []float64 // per-coordinate minimum over all points
	maxes    []float64 // per-coordinate maximum over all points
	boxsize  []float64 // periodic box lengths; nil if non-periodic
	nodes    []Node    // node 0 is the root; children follow their parent
}

// NewTree builds a KD-tree from flat row-major data with n points of
// dimensionality m. leafSize caps the number of points per leaf.
func NewTree(data []float64, n, m, leafSize int) (*Tree, error) {
	return newTree(data, n, m, nil, leafSize)
}

// NewPeriodicTree builds a KD-tree whose distances wrap around a periodic
// box. boxsize holds one length per dimension; a length of 0 leaves that
// dimension non-periodic. Periodic coordinates are canonicalized into
// [0, boxsize[k]) before the tree is built.
func NewPeriodicTree(data []float64, n, m int, boxsize []float64, leafSize int) (*Tree, error) {
	if len(boxsize) != m {
		return nil, fmt.Errorf("kdcount: boxsize has %d lengths for %d dimensions", len(boxsize), m)
	}
	for k, s := range boxsize {
		if math.IsNaN(s) || s < 0 {
			return nil, fmt.Errorf("kdcount: boxsize[%d] = %v, must be >= 0", k, s)
		}
	}
	box := make([]float64, m)
	copy(box, boxsize)
	return newTree(data, n, m, box, leafSize)
}

func newTree(data []float64, n, m int, boxsize []float64, leafSize int) (*Tree, error) {
	if m < 1 {
		return nil, fmt.Errorf("kdcount: dimensionality must be >= 1, got %d", m)
	}
	if n < 0 || len(data) != n*m {
		return nil, fmt.Errorf("kdcount: data length %d does not match n*m = %d", len(data), n*m)
	}
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	if boxsize != nil {
		for i := range dataCopy {
			full := boxsize[i%m]
			if full <= 0 {
				continue
			}
			v := math.Mod(dataCopy[i], full)
			if v < 0 {
				v += full
			}
			dataCopy[i] = v
		}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	t := &Tree{
		data:     dataCopy,
		n:        n,
		m:        m,
		leafSize: leafSize,
		indices:  indices,
		mins:     make([]float64, m),
		maxes:    make([]float64, m),
		boxsize:  boxsize,
	}

	for k := 0; k < m; k++ {
		t.mins[k] = math.Inf(1)
		t.maxes[k] = math.Inf(-1)
	}
	for i := 0; i < n; i++ {
		for k := 0; k < m; k++ {
			v := dataCopy[i*m+k]
			if v < t.mins[k] {
				t.mins[k] = v
			}
			if v > t.maxes[k] {
				t.maxes[k] = v
			}
		}
	}

	if n > 0 {
		t.build(0, n)
	}
	return t, nil
}

// build creates the node for indices[start:end] and returns its position
// in the node slice. Children are created after their parent, so a
// reverse scan over nodes visits children before parents.
func (t *Tree) build(start, end int) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		StartIdx: start,
		EndIdx:   end,
		Children: end - start,
		SplitDim: -1,
	})

	count := end - start
	if count <= t.leafSize {
		return id
	}

	// Split the dimension with the greatest spread at the median.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.m; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.indices[i]*t.m+d]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo > maxSpread {
			maxSpread = hi - lo
			splitDim = d
		}
	}

	t.sortByDimension(start, end, splitDim)
	mid := start + count/2
	splitVal := t.data[t.indices[mid]*t.m+splitDim]

	less := t.build(start, mid)
	greater := t.build(mid, end)

	t.nodes[id].SplitDim = splitDim
	t.nodes[id].SplitVal = splitVal
	t.nodes[id].Less = less
	t.nodes[id].Greater = greater
	return id
}

// sortByDimension sorts indices[start:end] by the given dimension.
func (t *Tree) sortByDimension(start, end, dim int) {
	sub := t.indices[start:end]
	m := t.m
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		return data[sub[i]*m+dim] < data[sub[j]*m+dim]
	})
}

// BuildWeights aggregates per-point weights into per-node sums, addressed
// by node index. weights is indexed by original point index. The result is
// what CountNeighborsWeighted expects as a side's node-weight array.
func (t *Tree) BuildWeights(weights []float64) ([]float64, error) {
	if len(weights) != t.n {
		return nil, fmt.Errorf("kdcount: got %d weights for %d points", len(weights), t.n)
	}
	nodeWeights := make([]float64, len(t.nodes))
	for id := len(t.nodes) - 1; id >= 0; id-- {
		nd := &t.nodes[id]
		if nd.IsLeaf() {
			var sum float64
			for i := nd.StartIdx; i < nd.EndIdx; i++ {
				sum += weights[t.indices[i]]
			}
			nodeWeights[id] = sum
		} else {
			nodeWeights[id] = nodeWeights[nd.Less] + nodeWeights[nd.Greater]
		}
	}
	return nodeWeights, nil
}

// --- accessors ---

func (t *Tree) Data() []float64    { return t.data }
func (t *Tree) NumPoints() int     { return t.n }
func (t *Tree) NumDims() int       { return t.m }
func (t *Tree) Indices() []int     { return t.indices }
func (t *Tree) Nodes() []Node      { return t.nodes }
func (t *Tree) Mins() []float64    { return t.mins }
func (t *Tree) Maxes() []float64   { return t.maxes }
func (t *Tree) BoxSize() []float64 { return t.boxsize }
