package decision

import (
	"context"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

const (
	attrX = iota
	attrY
	attrCost
	attrType
	attrCount
)

// cyclePenalty scales the cost of a cell the model has already trained on.
const cyclePenalty = 0.5

// NaiveBayes keeps per-class frequency tables over the x, y, cost and type of
// every neighbor seen with a labeled cell, and scores classes with
// Laplace-smoothed products.
type NaiveBayes struct {
	diagnostics
	env Environment

	mu         sync.Mutex
	classes    []model.CellType
	freq       map[model.CellType]*[attrCount]map[string]int
	classCount map[model.CellType]int
	total      int
	visited    map[model.Position]struct{}
}

func NewNaiveBayes(env Environment, log logrus.FieldLogger) *NaiveBayes {
	m := &NaiveBayes{
		env:        env,
		freq:       make(map[model.CellType]*[attrCount]map[string]int),
		classCount: make(map[model.CellType]int),
		visited:    make(map[model.Position]struct{}),
	}
	m.diagnostics.init(KindNaiveBayes, log)
	return m
}

// Fit continues training with each record paired with its grid neighbors.
func (m *NaiveBayes) Fit(ctx context.Context, records []model.Record) error {
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		var neighbors []model.Cell
		if m.env != nil {
			neighbors = m.env.NeighborsOf(record.X, record.Y)
		}
		m.Train(record.Cell(), neighbors)
	}
	return nil
}

// Train adds one labeled observation. A position trained on before has its
// grid cost halved first.
func (m *NaiveBayes) Train(current model.Cell, neighbors []model.Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := current.Position()
	if _, seen := m.visited[pos]; seen {
		current.Cost *= cyclePenalty
		if m.env != nil {
			if cost, ok := m.env.ScaleCost(pos.X, pos.Y, cyclePenalty); ok {
				current.Cost = cost
			}
		}
		m.log.WithFields(logrus.Fields{"x": pos.X, "y": pos.Y, "cost": current.Cost}).Debug("cycle penalty applied")
	} else {
		m.visited[pos] = struct{}{}
	}

	class := current.Type
	table, ok := m.freq[class]
	if !ok {
		table = &[attrCount]map[string]int{}
		for i := range table {
			table[i] = make(map[string]int)
		}
		m.freq[class] = table
		m.classes = append(m.classes, class)
	}
	for _, neighbor := range neighbors {
		for i, key := range attributeKeys(neighbor) {
			table[i][key]++
		}
	}
	m.classCount[class]++
	m.total++
}

func attributeKeys(c model.Cell) [attrCount]string {
	var keys [attrCount]string
	keys[attrX] = strconv.Itoa(c.X)
	keys[attrY] = strconv.Itoa(c.Y)
	keys[attrCost] = strconv.FormatFloat(c.Cost, 'g', -1, 64)
	keys[attrType] = string(c.Type)
	return keys
}

// probability applies add-one smoothing over the classes seen so far.
func (m *NaiveBayes) probability(count, total int) float64 {
	return float64(count+1) / float64(total+len(m.classes))
}

func (m *NaiveBayes) Predict(_ model.Cell, neighbors []model.Cell) model.CellType {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.total == 0 {
		return m.untrainedPrediction()
	}

	best := m.classes[0]
	bestScore := -1.0
	for _, class := range m.classes {
		classTotal := m.classCount[class]
		score := m.probability(classTotal, m.total)
		table := m.freq[class]
		for _, neighbor := range neighbors {
			for i, key := range attributeKeys(neighbor) {
				score *= m.probability(table[i][key], classTotal)
			}
		}
		if score > bestScore {
			best = class
			bestScore = score
		}
	}
	return best
}

func (m *NaiveBayes) Trained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total > 0
}

func (m *NaiveBayes) Diagnostics() model.ModelDiagnostics {
	return m.snapshot(m.Trained())
}

// Samples returns the number of observations trained so far.
func (m *NaiveBayes) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
