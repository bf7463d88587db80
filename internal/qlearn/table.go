package qlearn

import (
	"sort"
	"sync"

	"gridsim/internal/model"
)

// Table maps a target cell to its estimated discounted reward. Entries are
// created at zero on first reference and never removed.
type Table struct {
	mu     sync.RWMutex
	values map[model.Position]float64
}

func NewTable() *Table {
	return &Table{values: make(map[model.Position]float64)}
}

// Value returns the entry for p, creating it at zero if absent.
func (t *Table) Value(p model.Position) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.touch(p)
}

func (t *Table) touch(p model.Position) float64 {
	v, ok := t.values[p]
	if !ok {
		t.values[p] = 0
	}
	return v
}

func (t *Table) Set(p model.Position, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[p] = v
}

// Update applies one temporal-difference step to p. The next-state estimate
// is p's own current value.
func (t *Table) Update(p model.Position, reward, alpha, gamma float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.touch(p)
	updated := TemporalDifference(q, reward, q, alpha, gamma)
	t.values[p] = updated
	return updated
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Snapshot returns every entry ordered by row, then column.
func (t *Table) Snapshot() []model.QValue {
	t.mu.RLock()
	out := make([]model.QValue, 0, len(t.values))
	for p, v := range t.values {
		out = append(out, model.QValue{X: p.X, Y: p.Y, Value: v})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Restore replaces the table contents with values.
func (t *Table) Restore(values []model.QValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values = make(map[model.Position]float64, len(values))
	for _, v := range values {
		t.values[model.Position{X: v.X, Y: v.Y}] = v.Value
	}
}

// TemporalDifference returns q + alpha*(reward + gamma*next - q).
func TemporalDifference(q, reward, next, alpha, gamma float64) float64 {
	return q + alpha*(reward+gamma*next-q)
}
