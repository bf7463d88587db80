package qlearn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/grid"
	"gridsim/internal/model"
)

func TestTableInitializesToZero(t *testing.T) {
	table := NewTable()
	p := model.Position{X: 2, Y: 3}
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, 0.0, table.Value(p))
	assert.Equal(t, 1, table.Len())
}

func TestTableUpdateFormula(t *testing.T) {
	table := NewTable()
	p := model.Position{X: 1, Y: 0}

	got := table.Update(p, -1, 0.1, 0.9)
	assert.InDelta(t, -0.1, got, 1e-12)
	assert.InDelta(t, -0.1, table.Value(p), 1e-12)

	// q=-0.1, r=-1: -0.1 + 0.1*(-1 + 0.9*-0.1 + 0.1)
	got = table.Update(p, -1, 0.1, 0.9)
	assert.InDelta(t, -0.1+0.1*(-1-0.09+0.1), got, 1e-12)
}

func TestTemporalDifference(t *testing.T) {
	assert.InDelta(t, -0.1, TemporalDifference(0, -1, 0, 0.1, 0.9), 1e-12)
	assert.InDelta(t, 0.5+0.5*(1+0.5*2-0.5), TemporalDifference(0.5, 1, 2, 0.5, 0.5), 1e-12)
}

func TestTableSnapshotOrderAndRestore(t *testing.T) {
	table := NewTable()
	table.Set(model.Position{X: 2, Y: 1}, 3)
	table.Set(model.Position{X: 0, Y: 1}, 2)
	table.Set(model.Position{X: 5, Y: 0}, 1)

	snap := table.Snapshot()
	assert.Equal(t, []model.QValue{{X: 5, Y: 0, Value: 1}, {X: 0, Y: 1, Value: 2}, {X: 2, Y: 1, Value: 3}}, snap)

	restored := NewTable()
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())
}

func newLearner(t *testing.T, g *grid.Grid, cfg Config, seed int64) *Learner {
	t.Helper()
	l, err := New(cfg, g, rand.New(rand.NewSource(seed)), nil)
	require.NoError(t, err)
	return l
}

// greedyConfig disables exploration and the revisit penalty so moves follow
// the table alone.
func greedyConfig(start, target model.Position) Config {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	cfg.RevisitPenalty = 0
	cfg.Start = start
	cfg.Target = &target
	return cfg
}

func TestNewValidates(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	_, err = New(Config{}, nil, rng, nil)
	require.Error(t, err)
	_, err = New(Config{}, g, nil, nil)
	require.Error(t, err)
	for name, mutate := range map[string]func(*Config){
		"alpha zero":        func(c *Config) { c.Alpha = 0 },
		"alpha above one":   func(c *Config) { c.Alpha = 1.5 },
		"negative gamma":    func(c *Config) { c.Gamma = -0.1 },
		"gamma above one":   func(c *Config) { c.Gamma = 2 },
		"epsilon above one": func(c *Config) { c.Epsilon = 2 },
		"negative penalty":  func(c *Config) { c.RevisitPenalty = -1 },
		"start outside":     func(c *Config) { c.Start = model.Position{X: 5, Y: 0} },
		"target outside":    func(c *Config) { c.Target = &model.Position{X: -1, Y: 0} },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err = New(cfg, g, rng, nil)
		assert.Error(t, err, name)
	}
}

func TestZeroDiscountIsKept(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	cfg := greedyConfig(model.Position{}, model.Position{X: 2, Y: 2})
	cfg.Alpha = 0.5
	cfg.Gamma = 0
	l := newLearner(t, g, cfg, 1)
	assert.Equal(t, 0.0, l.Config().Gamma)

	// (0,1) holds the highest value, so the greedy step takes it.
	l.Table().Set(model.Position{X: 0, Y: 1}, 1)
	require.True(t, l.Step())
	require.Equal(t, model.Position{X: 0, Y: 1}, l.Position())
	// 1 + 0.5*(-1 + 0*1 - 1); a discount of 0.9 would give 0.45.
	assert.InDelta(t, 0.0, l.Table().Value(model.Position{X: 0, Y: 1}), 1e-12)
}

func TestChooseActionGreedyTieUsesNeighborOrder(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	l := newLearner(t, g, greedyConfig(model.Position{X: 1, Y: 1}, model.Position{X: 2, Y: 2}), 1)

	cell, ok := l.ChooseAction()
	require.True(t, ok)
	assert.Equal(t, model.Position{X: 1, Y: 0}, cell.Position())
	// All four neighbors got an entry.
	assert.Equal(t, 4, l.Table().Len())
}

func TestChooseActionPrefersHigherValue(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	l := newLearner(t, g, greedyConfig(model.Position{X: 1, Y: 1}, model.Position{X: 2, Y: 2}), 1)
	l.Table().Set(model.Position{X: 2, Y: 1}, 0.3)

	cell, _ := l.ChooseAction()
	assert.Equal(t, model.Position{X: 2, Y: 1}, cell.Position())
}

func TestChooseActionPenalizesVisited(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	cfg := greedyConfig(model.Position{X: 1, Y: 1}, model.Position{X: 2, Y: 2})
	cfg.RevisitPenalty = 0.5
	l := newLearner(t, g, cfg, 1)
	l.Table().Set(model.Position{X: 2, Y: 1}, 0.3)
	l.visited[model.Position{X: 2, Y: 1}] = struct{}{}

	cell, _ := l.ChooseAction()
	assert.Equal(t, model.Position{X: 1, Y: 0}, cell.Position())
}

func TestChooseActionExploresWithinBounds(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	cfg := greedyConfig(model.Position{}, model.Position{X: 2, Y: 2})
	cfg.Epsilon = 1
	l := newLearner(t, g, cfg, 9)

	for i := 0; i < 50; i++ {
		cell, ok := l.ChooseAction()
		require.True(t, ok)
		assert.Contains(t, []model.Position{{X: 0, Y: 1}, {X: 1, Y: 0}}, cell.Position())
	}
}

func TestStepUpdatesCountersAndTable(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	require.NoError(t, g.Place(0, 1, model.CellBomb, model.BombCost))
	l := newLearner(t, g, greedyConfig(model.Position{}, model.Position{X: 2, Y: 2}), 1)

	// Greedy with all zeros goes down first: (0,1) is the bomb.
	require.True(t, l.Step())
	state := l.State()
	assert.Equal(t, 0, state.X)
	assert.Equal(t, 1, state.Y)
	assert.Equal(t, 1, state.Steps)
	assert.Equal(t, model.BombCost, state.Cost)
	assert.Equal(t, 1, state.Bombs)
	assert.InDelta(t, 0.1, l.Table().Value(model.Position{X: 0, Y: 1}), 1e-12)
	assert.False(t, state.Done)
}

func TestStepStopsAtTarget(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	l := newLearner(t, g, greedyConfig(model.Position{}, model.Position{X: 0, Y: 1}), 1)

	require.True(t, l.Step())
	assert.True(t, l.Done())
	before := l.State()
	assert.False(t, l.Step())
	assert.Equal(t, before, l.State())
}

func TestResetKeepsTable(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	l := newLearner(t, g, greedyConfig(model.Position{}, model.Position{X: 0, Y: 1}), 1)
	require.True(t, l.Step())
	entries := l.Table().Snapshot()

	l.Reset()
	state := l.State()
	assert.Equal(t, 2, state.Episode)
	assert.False(t, state.Done)
	assert.Zero(t, state.Steps)
	assert.Equal(t, entries, l.Table().Snapshot())
}

func TestRandomTargetInsideGrid(t *testing.T) {
	g, err := grid.New(4)
	require.NoError(t, err)
	l := newLearner(t, g, DefaultConfig(), 11)
	for i := 0; i < 20; i++ {
		target := l.Target()
		assert.True(t, g.InBounds(target.X, target.Y))
		l.Reset()
	}
}
