package decision

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

// Model chooses the cell type an agent should head for next.
type Model interface {
	Name() string
	// Fit trains from a historical dataset. KNN and DecisionTree refit from
	// scratch; NaiveBayes and Network continue from their current state.
	Fit(ctx context.Context, records []model.Record) error
	// Predict never fails: an untrained model answers free and records a diagnostic.
	Predict(current model.Cell, neighbors []model.Cell) model.CellType
	Trained() bool
	Diagnostics() model.ModelDiagnostics
}

// OnlineLearner is implemented by models that update on every labeled observation.
type OnlineLearner interface {
	Model
	Train(current model.Cell, neighbors []model.Cell)
}

// NeighborSource supplies the grid neighbors paired with a training record.
type NeighborSource interface {
	NeighborsOf(x, y int) []model.Cell
}

// Environment is the grid surface NaiveBayes needs: neighbor lookup plus the
// single-writer cost mutation used by its cycle penalty.
type Environment interface {
	NeighborSource
	ScaleCost(x, y int, factor float64) (float64, bool)
}

type diagnostics struct {
	name      string
	log       logrus.FieldLogger
	untrained atomic.Int64
}

func (d *diagnostics) init(name string, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d.name = name
	d.log = log.WithField("model", name)
}

func (d *diagnostics) Name() string {
	return d.name
}

func (d *diagnostics) untrainedPrediction() model.CellType {
	d.untrained.Add(1)
	d.log.Warn("prediction requested before training, defaulting to free")
	return model.CellFree
}

func (d *diagnostics) snapshot(trained bool) model.ModelDiagnostics {
	return model.ModelDiagnostics{
		Name:                 d.name,
		Trained:              trained,
		UntrainedPredictions: d.untrained.Load(),
	}
}

// classCounter counts labels while remembering the order each was first seen.
type classCounter struct {
	order  []model.CellType
	counts map[model.CellType]int
}

func newClassCounter() *classCounter {
	return &classCounter{counts: make(map[model.CellType]int)}
}

func (c *classCounter) add(t model.CellType) {
	if _, ok := c.counts[t]; !ok {
		c.order = append(c.order, t)
	}
	c.counts[t]++
}

// majority returns the most frequent label; ties go to the one seen first.
func (c *classCounter) majority() model.CellType {
	best := model.CellFree
	bestCount := 0
	for _, t := range c.order {
		if c.counts[t] > bestCount {
			best = t
			bestCount = c.counts[t]
		}
	}
	return best
}
