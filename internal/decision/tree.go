package decision

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

// Attribute is a numeric field a tree node can split on.
type Attribute int

const (
	AttributeX Attribute = iota
	AttributeY
	AttributeCost
)

var splitAttributes = [...]Attribute{AttributeX, AttributeY, AttributeCost}

func (a Attribute) String() string {
	switch a {
	case AttributeX:
		return "x"
	case AttributeY:
		return "y"
	case AttributeCost:
		return "cost"
	default:
		return fmt.Sprintf("attribute(%d)", int(a))
	}
}

func (a Attribute) value(x, y int, cost float64) float64 {
	switch a {
	case AttributeX:
		return float64(x)
	case AttributeY:
		return float64(y)
	default:
		return cost
	}
}

func (a Attribute) of(r model.Record) float64 {
	return a.value(r.X, r.Y, r.Cost)
}

// TreeNode is either a leaf carrying a class or a split whose children are
// indexes into the tree's node arena.
type TreeNode struct {
	Leaf      bool
	Class     model.CellType
	Attribute Attribute
	Threshold float64
	Left      int
	Right     int
}

// DecisionTree is a CART-style classifier built by exhaustive Gini split search.
type DecisionTree struct {
	diagnostics
	maxDepth int

	mu    sync.RWMutex
	nodes []TreeNode
	root  int
}

func NewDecisionTree(maxDepth int, log logrus.FieldLogger) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	m := &DecisionTree{maxDepth: maxDepth, root: -1}
	m.diagnostics.init(KindDecisionTree, log)
	return m
}

func (m *DecisionTree) MaxDepth() int {
	return m.maxDepth
}

// Fit rebuilds the tree from scratch.
func (m *DecisionTree) Fit(ctx context.Context, records []model.Record) error {
	b := treeBuilder{ctx: ctx, maxDepth: m.maxDepth}
	root, err := b.build(append([]model.Record(nil), records...), 0)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = b.nodes
	m.root = root
	return nil
}

func (m *DecisionTree) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root >= 0
}

func (m *DecisionTree) Diagnostics() model.ModelDiagnostics {
	return m.snapshot(m.Trained())
}

// Nodes returns a copy of the node arena and the root index.
func (m *DecisionTree) Nodes() ([]TreeNode, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TreeNode(nil), m.nodes...), m.root
}

// Predict walks the tree with the first neighbor's x, y and cost. The current
// cell does not take part.
func (m *DecisionTree) Predict(_ model.Cell, neighbors []model.Cell) model.CellType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.root < 0 {
		return m.untrainedPrediction()
	}
	if len(neighbors) == 0 {
		m.log.Debug("no neighbors to predict from, defaulting to free")
		return model.CellFree
	}
	query := neighbors[0]

	idx := m.root
	for depth := 0; ; depth++ {
		if depth > m.maxDepth || idx < 0 || idx >= len(m.nodes) {
			m.log.WithField("depth", depth).Warn("tree walk exceeded depth bound or hit a missing node")
			return model.CellFree
		}
		node := m.nodes[idx]
		if node.Leaf {
			return node.Class
		}
		if node.Attribute.value(query.X, query.Y, query.Cost) <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

type treeBuilder struct {
	ctx      context.Context
	maxDepth int
	nodes    []TreeNode
}

func (b *treeBuilder) leaf(class model.CellType) int {
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Class: class, Left: -1, Right: -1})
	return len(b.nodes) - 1
}

func (b *treeBuilder) build(records []model.Record, depth int) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return -1, err
	}
	if len(records) == 0 {
		return b.leaf(model.CellFree), nil
	}

	counts := countClasses(records)
	if len(counts.order) == 1 {
		return b.leaf(counts.order[0]), nil
	}
	if depth >= b.maxDepth {
		return b.leaf(counts.majority()), nil
	}

	attr, threshold, ok := bestSplit(records)
	if !ok {
		return b.leaf(counts.majority()), nil
	}

	left, right := partition(records, attr, threshold)
	leftIdx, err := b.build(left, depth+1)
	if err != nil {
		return -1, err
	}
	rightIdx, err := b.build(right, depth+1)
	if err != nil {
		return -1, err
	}
	b.nodes = append(b.nodes, TreeNode{Attribute: attr, Threshold: threshold, Left: leftIdx, Right: rightIdx})
	return len(b.nodes) - 1, nil
}

func countClasses(records []model.Record) *classCounter {
	counts := newClassCounter()
	for _, r := range records {
		counts.add(r.Type)
	}
	return counts
}

// Gini returns 1 - Σ p_c² over the class proportions of records; 0 when empty.
func Gini(records []model.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	counts := countClasses(records)
	total := float64(len(records))
	impurity := 1.0
	for _, class := range counts.order {
		p := float64(counts.counts[class]) / total
		impurity -= p * p
	}
	return impurity
}

func partition(records []model.Record, attr Attribute, threshold float64) (left, right []model.Record) {
	for _, r := range records {
		if attr.of(r) <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

// bestSplit tries every distinct observed value of every attribute as a
// threshold and keeps the first split with the lowest weighted impurity.
func bestSplit(records []model.Record) (Attribute, float64, bool) {
	total := float64(len(records))
	bestImpurity := 0.0
	var bestAttr Attribute
	var bestThreshold float64
	found := false

	for _, attr := range splitAttributes {
		seen := make(map[float64]struct{})
		for _, r := range records {
			v := attr.of(r)
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}

			left, right := partition(records, attr, v)
			impurity := Gini(left)*float64(len(left))/total + Gini(right)*float64(len(right))/total
			if !found || impurity < bestImpurity {
				bestImpurity = impurity
				bestAttr = attr
				bestThreshold = v
				found = true
			}
		}
	}
	return bestAttr, bestThreshold, found
}
