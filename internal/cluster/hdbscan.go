package cluster

import (
	"fmt"
	"sort"
)

// Noise is the label assigned to vectors that fall outside every cluster.
const Noise = -1

// Clusterer assigns one integer label per input vector. Noise (-1) marks
// vectors that belong to no cluster. Implementations must be deterministic
// for a fixed input order.
type Clusterer interface {
	Cluster(vectors [][]float64, minClusterSize, minSamples int) ([]int, error)
}

// HDBSCAN is a hierarchical density-based clusterer with excess-of-mass
// cluster selection. It operates on the full pairwise distance matrix, which
// is fine for the batch sizes one aggregation run sees.
type HDBSCAN struct {
	// AllowSingleCluster permits selecting the condensed-tree root when no
	// split produces two viable clusters. Off by default, matching the
	// reference behaviour.
	AllowSingleCluster bool
}

func (h *HDBSCAN) Cluster(vectors [][]float64, minClusterSize, minSamples int) ([]int, error) {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 {
		return labels, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	if n < minClusterSize {
		return labels, nil
	}
	if minSamples <= 0 {
		minSamples = minClusterSize
	}
	if minSamples >= n {
		minSamples = n - 1
	}

	dist := pairwiseDistances(vectors)
	core := coreDistances(dist, minSamples)
	edges := minimumSpanningTree(dist, core)
	nodes := singleLinkage(edges, n)
	tree := condense(nodes, n, minClusterSize)
	selected := tree.selectClusters(h.AllowSingleCluster)
	tree.label(selected, labels)
	return labels, nil
}

func pairwiseDistances(vectors [][]float64) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances returns, per point, the distance to its minSamples-th
// nearest neighbour (the point itself counts as the zeroth).
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[minSamples]
	}
	return core
}

type mstEdge struct {
	a, b int
	w    float64
}

// minimumSpanningTree runs Prim's algorithm over the implicit mutual
// reachability graph: mreach(a,b) = max(d(a,b), core(a), core(b)).
func minimumSpanningTree(dist [][]float64, core []float64) []mstEdge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = -1
	}
	inTree[0] = true
	for j := 1; j < n; j++ {
		best[j] = mutualReachability(dist, core, 0, j)
		from[j] = 0
	}
	edges := make([]mstEdge, 0, n-1)
	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, mstEdge{a: from[next], b: next, w: best[next]})
		inTree[next] = true
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w := mutualReachability(dist, core, next, j); w < best[j] {
				best[j] = w
				from[j] = next
			}
		}
	}
	return edges
}

func mutualReachability(dist [][]float64, core []float64, a, b int) float64 {
	w := dist[a][b]
	if core[a] > w {
		w = core[a]
	}
	if core[b] > w {
		w = core[b]
	}
	return w
}

// dendroNode is one merge in the single-linkage hierarchy. Nodes 0..n-1 are
// the input points; internal nodes follow in merge order.
type dendroNode struct {
	left, right int
	dist        float64
	size        int
}

func singleLinkage(edges []mstEdge, n int) []dendroNode {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].w != edges[j].w {
			return edges[i].w < edges[j].w
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})

	nodes := make([]dendroNode, n, 2*n-1)
	for i := 0; i < n; i++ {
		nodes[i] = dendroNode{left: -1, right: -1, size: 1}
	}
	parent := make([]int, n)
	compNode := make([]int, n)
	for i := 0; i < n; i++ {
		parent[i] = i
		compNode[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		merged := dendroNode{
			left:  compNode[ra],
			right: compNode[rb],
			dist:  e.w,
			size:  nodes[compNode[ra]].size + nodes[compNode[rb]].size,
		}
		nodes = append(nodes, merged)
		parent[rb] = ra
		compNode[ra] = len(nodes) - 1
	}
	return nodes
}

// condensedTree is the minClusterSize-pruned hierarchy. Points carry the
// cluster they last belonged to and the lambda (1/distance) at which they
// left it; clusters carry birth lambdas and accumulated stability.
type condensedTree struct {
	pointParent []int
	pointLambda []float64

	clusterParent []int
	birthLambda   []float64
	children      [][]int
	stability     []float64
}

// lambdaCap bounds 1/distance when merge distances collapse to zero, keeping
// stability arithmetic finite for duplicate vectors.
const lambdaCap = 1e12

func lambdaOf(d float64) float64 {
	if d <= 1/lambdaCap {
		return lambdaCap
	}
	return 1 / d
}

func condense(nodes []dendroNode, n, minClusterSize int) *condensedTree {
	t := &condensedTree{
		pointParent:   make([]int, n),
		pointLambda:   make([]float64, n),
		clusterParent: []int{-1},
		birthLambda:   []float64{0},
		children:      [][]int{nil},
		stability:     []float64{0},
	}
	for i := range t.pointParent {
		t.pointParent[i] = -1
	}
	if len(nodes) == n {
		// single point, no merges
		return t
	}

	type frame struct {
		node    int
		cluster int
	}
	stack := []frame{{node: len(nodes) - 1, cluster: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := nodes[f.node]
		lambda := lambdaOf(node.dist)
		left, right := node.left, node.right
		leftSize, rightSize := nodes[left].size, nodes[right].size

		switch {
		case leftSize >= minClusterSize && rightSize >= minClusterSize:
			cl := t.newCluster(f.cluster, lambda, leftSize)
			cr := t.newCluster(f.cluster, lambda, rightSize)
			stack = append(stack, frame{node: left, cluster: cl}, frame{node: right, cluster: cr})
		case leftSize < minClusterSize && rightSize < minClusterSize:
			t.dropPoints(nodes, left, f.cluster, lambda)
			t.dropPoints(nodes, right, f.cluster, lambda)
		case leftSize < minClusterSize:
			t.dropPoints(nodes, left, f.cluster, lambda)
			stack = append(stack, frame{node: right, cluster: f.cluster})
		default:
			t.dropPoints(nodes, right, f.cluster, lambda)
			stack = append(stack, frame{node: left, cluster: f.cluster})
		}
	}
	return t
}

func (t *condensedTree) newCluster(parent int, lambda float64, size int) int {
	id := len(t.clusterParent)
	t.clusterParent = append(t.clusterParent, parent)
	t.birthLambda = append(t.birthLambda, lambda)
	t.children = append(t.children, nil)
	t.stability = append(t.stability, 0)
	t.children[parent] = append(t.children[parent], id)
	t.stability[parent] += (lambda - t.birthLambda[parent]) * float64(size)
	return id
}

// dropPoints records every leaf under node as leaving cluster at lambda.
func (t *condensedTree) dropPoints(nodes []dendroNode, node, cluster int, lambda float64) {
	stack := []int{node}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if nodes[cur].left == -1 {
			t.pointParent[cur] = cluster
			t.pointLambda[cur] = lambda
			t.stability[cluster] += lambda - t.birthLambda[cluster]
			continue
		}
		stack = append(stack, nodes[cur].left, nodes[cur].right)
	}
}

// selectClusters picks the flat clustering that maximizes total stability
// ("excess of mass"): a cluster is kept unless its children together are
// more stable.
func (t *condensedTree) selectClusters(allowSingleCluster bool) []bool {
	num := len(t.clusterParent)
	selected := make([]bool, num)
	lowest := 1
	if allowSingleCluster {
		lowest = 0
	}
	for c := num - 1; c >= lowest; c-- {
		childSum := 0.0
		for _, ch := range t.children[c] {
			childSum += t.stability[ch]
		}
		if len(t.children[c]) > 0 && childSum > t.stability[c] {
			t.stability[c] = childSum
			continue
		}
		selected[c] = true
		t.unselectDescendants(c, selected)
	}
	return selected
}

func (t *condensedTree) unselectDescendants(c int, selected []bool) {
	stack := append([]int(nil), t.children[c]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		selected[cur] = false
		stack = append(stack, t.children[cur]...)
	}
}

// label writes flat labels: selected clusters are numbered in condensed-tree
// creation order, every other point stays Noise.
func (t *condensedTree) label(selected []bool, labels []int) {
	clusterLabel := make(map[int]int, len(selected))
	next := 0
	for c := range selected {
		if selected[c] {
			clusterLabel[c] = next
			next++
		}
	}
	for p := range t.pointParent {
		for c := t.pointParent[p]; c >= 0; c = t.clusterParent[c] {
			if selected[c] {
				labels[p] = clusterLabel[c]
				break
			}
		}
	}
}
