package decision

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"gridsim/internal/model"
)

// KNN votes among the k training records spatially closest to the current cell.
type KNN struct {
	diagnostics
	k int

	mu   sync.RWMutex
	data []model.Record
}

func NewKNN(k int, log logrus.FieldLogger) *KNN {
	if k <= 0 {
		k = DefaultK
	}
	m := &KNN{k: k}
	m.diagnostics.init(KindKNN, log)
	return m
}

func (m *KNN) K() int {
	return m.k
}

func (m *KNN) Fit(ctx context.Context, records []model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]model.Record(nil), records...)
	return nil
}

func (m *KNN) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) > 0
}

func (m *KNN) Diagnostics() model.ModelDiagnostics {
	return m.snapshot(m.Trained())
}

type neighborDistance struct {
	distance float64
	class    model.CellType
}

// Predict ignores neighbors: only the (x,y) distance to stored records counts.
func (m *KNN) Predict(current model.Cell, _ []model.Cell) model.CellType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.data) == 0 {
		return m.untrainedPrediction()
	}

	query := []float64{float64(current.X), float64(current.Y)}
	distances := make([]neighborDistance, 0, len(m.data))
	for _, record := range m.data {
		d := floats.Distance(query, []float64{float64(record.X), float64(record.Y)}, 2)
		distances = append(distances, neighborDistance{distance: d, class: record.Type})
	}
	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	k := m.k
	if k > len(distances) {
		k = len(distances)
	}
	votes := newClassCounter()
	for _, nd := range distances[:k] {
		votes.add(nd.class)
	}
	return votes.majority()
}
