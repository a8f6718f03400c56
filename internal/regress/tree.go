package regress

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TreeParams controls tree growth. Trees are grown on gradient/hessian pairs
// so the same builder serves plain regression trees (g = -y, h = 1, Lambda = 0)
// and second-order boosting.
type TreeParams struct {
	MaxDepth       int     // 0 for unlimited
	MinSamplesLeaf int     // minimum rows per leaf
	MinChildWeight float64 // minimum hessian sum per child
	Lambda         float64 // L2 penalty on leaf weights
	Gamma          float64 // minimum gain to split
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right int
	value       float64
	leaf        bool
}

// Tree is a fitted binary regression tree. Rows with x[feature] <= threshold go left.
type Tree struct {
	nodes []treeNode
}

// PredictRow walks the tree for one feature vector.
func (t *Tree) PredictRow(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// leaves counts leaf nodes.
func (t *Tree) leaves() int {
	c := 0
	for _, n := range t.nodes {
		if n.leaf {
			c++
		}
	}
	return c
}

type treeBuilder struct {
	rows   [][]float64
	grad   []float64
	hess   []float64
	params TreeParams
	nodes  []treeNode
	order  []int // scratch for sorting
}

// growTree fits a tree to the rows listed in idx.
func growTree(rows [][]float64, grad, hess []float64, idx []int, params TreeParams) *Tree {
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	b := &treeBuilder{
		rows:   rows,
		grad:   grad,
		hess:   hess,
		params: params,
		order:  make([]int, len(idx)),
	}
	work := append([]int(nil), idx...)
	b.build(work, 0)
	return &Tree{nodes: b.nodes}
}

func (b *treeBuilder) leafValue(G, H float64) float64 {
	return -G / (H + b.params.Lambda)
}

func (b *treeBuilder) score(G, H float64) float64 {
	return G * G / (H + b.params.Lambda)
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var G, H float64
	for _, i := range idx {
		G += b.grad[i]
		H += b.hess[i]
	}

	self := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{leaf: true, value: b.leafValue(G, H)})

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return self
	}
	if len(idx) < 2*b.params.MinSamplesLeaf {
		return self
	}

	feature, threshold, gain, ok := b.bestSplit(idx, G, H)
	if !ok || gain <= b.params.Gamma {
		return self
	}

	// Partition in place: left rows first.
	mid := 0
	for k, i := range idx {
		if b.rows[i][feature] <= threshold {
			idx[mid], idx[k] = idx[k], idx[mid]
			mid++
		}
	}
	left := b.build(idx[:mid], depth+1)
	right := b.build(idx[mid:], depth+1)

	b.nodes[self] = treeNode{feature: feature, threshold: threshold, left: left, right: right}
	return self
}

func (b *treeBuilder) bestSplit(idx []int, G, H float64) (feature int, threshold, gain float64, ok bool) {
	parent := b.score(G, H)
	minLeaf := b.params.MinSamplesLeaf
	p := len(b.rows[idx[0]])
	order := b.order[:len(idx)]

	bestGain := math.Inf(-1)
	for f := 0; f < p; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.rows[order[a]][f] < b.rows[order[c]][f] })

		var GL, HL float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			GL += b.grad[i]
			HL += b.hess[i]

			nLeft := k + 1
			if nLeft < minLeaf || len(order)-nLeft < minLeaf {
				continue
			}
			v, next := b.rows[i][f], b.rows[order[k+1]][f]
			if v == next {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.params.MinChildWeight || HR < b.params.MinChildWeight {
				continue
			}

			g := b.score(GL, HL) + b.score(GR, HR) - parent
			if g > bestGain {
				bestGain = g
				feature = f
				threshold = v + (next-v)/2
				if threshold >= next {
					threshold = v
				}
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}

// DecisionTree is a single CART regression tree with squared-error splits.
type DecisionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	tree           *Tree
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesLeaf: 1}
}

func (d *DecisionTree) Fit(X *mat.Dense, y []float64) error {
	n, _, err := checkXY(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	d.tree = fitMeanTree(rowsOf(X), y, idx, TreeParams{MaxDepth: d.MaxDepth, MinSamplesLeaf: d.MinSamplesLeaf})
	return nil
}

func (d *DecisionTree) Predict(X *mat.Dense) []float64 {
	if d.tree == nil {
		panic(ErrNotFitted)
	}
	return predictTrees(X, func(x []float64) float64 { return d.tree.PredictRow(x) })
}

// fitMeanTree grows a tree whose leaves are the mean target of their rows.
// idx may repeat rows, as in a bootstrap sample.
func fitMeanTree(rows [][]float64, y []float64, idx []int, params TreeParams) *Tree {
	grad := make([]float64, len(y))
	hess := make([]float64, len(y))
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}
	params.Lambda = 0
	params.MinChildWeight = 0
	return growTree(rows, grad, hess, idx, params)
}

func predictTrees(X *mat.Dense, f func([]float64) float64) []float64 {
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = f(X.RawRowView(i))
	}
	return out
}
