package agent

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/decision"
	"gridsim/internal/grid"
	"gridsim/internal/model"
)

type fixedModel struct {
	answer model.CellType
	calls  int
}

func (m *fixedModel) Name() string { return "fixed" }

func (m *fixedModel) Fit(context.Context, []model.Record) error { return nil }

func (m *fixedModel) Predict(model.Cell, []model.Cell) model.CellType {
	m.calls++
	return m.answer
}

func (m *fixedModel) Trained() bool { return true }

func (m *fixedModel) Diagnostics() model.ModelDiagnostics {
	return model.ModelDiagnostics{Name: m.Name(), Trained: true}
}

func newTestGrid(t *testing.T, size int, bombs, treasures []model.Position) *grid.Grid {
	t.Helper()
	g, err := grid.New(size)
	require.NoError(t, err)
	for _, p := range bombs {
		require.NoError(t, g.Place(p.X, p.Y, model.CellBomb, model.BombCost))
	}
	for _, p := range treasures {
		require.NoError(t, g.Place(p.X, p.Y, model.CellTreasure, model.TreasureCost))
	}
	return g
}

func newTestAgent(t *testing.T, g *grid.Grid, m decision.Model) *Agent {
	t.Helper()
	a, err := New(Config{ID: "a1"}, m, g, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	a.Step()
	require.Equal(t, model.Position{}, a.Position())
	return a
}

func TestNewValidatesInputs(t *testing.T) {
	g := newTestGrid(t, 2, nil, nil)
	rng := rand.New(rand.NewSource(1))
	m := &fixedModel{}

	_, err := New(Config{}, m, g, rng, nil)
	require.Error(t, err)
	_, err = New(Config{ID: "a"}, nil, g, rng, nil)
	require.Error(t, err)
	_, err = New(Config{ID: "a"}, m, nil, rng, nil)
	require.Error(t, err)
	_, err = New(Config{ID: "a"}, m, g, nil, nil)
	require.Error(t, err)
}

func TestFirstStepSpawnsOnStart(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	a, err := New(Config{ID: "a1", Start: model.Position{X: 2, Y: 1}}, &fixedModel{}, g, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)

	a.Step()
	state := a.State()
	assert.Equal(t, 2, state.X)
	assert.Equal(t, 1, state.Y)
	assert.Equal(t, 1, state.Steps)
	assert.Equal(t, model.FreeCost, state.Cost)
	assert.True(t, a.Visited(2, 1))
	assert.Equal(t, model.CellFree, g.Discovery(2, 1))
}

func TestBombWithoutStrengthDestroys(t *testing.T) {
	g := newTestGrid(t, 3, []model.Position{{X: 1, Y: 0}}, nil)
	m := &fixedModel{answer: model.CellFree}
	a := newTestAgent(t, g, m)

	require.True(t, a.MoveTo(1, 0))
	assert.False(t, a.Alive())
	destroyed := a.State()

	assert.False(t, a.MoveTo(1, 1))
	a.MoveAutonomous()
	assert.False(t, a.MoveRandom())
	a.Step()

	assert.Equal(t, destroyed, a.State())
	assert.Zero(t, m.calls)
}

func TestStrengthAbsorbsBombs(t *testing.T) {
	g := newTestGrid(t, 4, []model.Position{{X: 1, Y: 0}, {X: 2, Y: 0}}, nil)
	a := newTestAgent(t, g, &fixedModel{})
	a.strength = 2

	require.True(t, a.MoveTo(1, 0))
	require.True(t, a.MoveTo(2, 0))

	state := a.State()
	assert.Equal(t, 0, state.Strength)
	assert.Equal(t, 2, state.BombsSurvived)
	assert.True(t, state.Alive)
	assert.Equal(t, model.FreeCost+2*model.BombCost, state.Cost)
}

func TestTreasureGrantsStrength(t *testing.T) {
	g := newTestGrid(t, 3, []model.Position{{X: 2, Y: 0}}, []model.Position{{X: 1, Y: 0}})
	a := newTestAgent(t, g, &fixedModel{})

	require.True(t, a.MoveTo(1, 0))
	assert.Equal(t, 1, a.State().Strength)
	assert.Equal(t, 1, a.State().Treasures)

	require.True(t, a.MoveTo(2, 0))
	state := a.State()
	assert.True(t, state.Alive)
	assert.Equal(t, 0, state.Strength)
	assert.Equal(t, 1, state.BombsSurvived)
}

func TestMoveBackToPreviousIsRejected(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	a := newTestAgent(t, g, &fixedModel{})
	require.True(t, a.MoveTo(1, 0))
	require.True(t, a.MoveTo(1, 1))
	before := a.State()

	assert.False(t, a.MoveTo(1, 0))
	assert.Equal(t, before, a.State())

	// Returning two steps back is allowed.
	require.True(t, a.MoveTo(0, 1))
	require.True(t, a.MoveTo(1, 1))
}

func TestSpawnLeavesNoPreviousCell(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	a, err := New(Config{ID: "a1", Start: model.Position{X: 0, Y: 1}}, &fixedModel{}, g, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	a.Step()
	require.Equal(t, model.Position{X: 0, Y: 1}, a.Position())

	require.True(t, a.MoveTo(0, 0))
	assert.True(t, a.Visited(0, 0))
	assert.Equal(t, 2, a.State().Steps)

	// The spawn cell is now the previous one.
	assert.False(t, a.MoveTo(0, 1))
}

func TestMoveToMissingCellIsIgnored(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	a := newTestAgent(t, g, &fixedModel{})
	before := a.State()

	assert.False(t, a.MoveTo(-1, 0))
	assert.False(t, a.MoveTo(3, 3))
	assert.Equal(t, before, a.State())
}

func TestMoveAutonomousPicksFirstMatchingNeighbor(t *testing.T) {
	g := newTestGrid(t, 3, nil, []model.Position{{X: 2, Y: 1}, {X: 1, Y: 2}})
	a, err := New(Config{ID: "a1", Start: model.Position{X: 1, Y: 1}}, &fixedModel{answer: model.CellTreasure}, g, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	a.Step()

	a.MoveAutonomous()
	assert.Equal(t, model.Position{X: 1, Y: 2}, a.Position())
}

func TestMoveAutonomousFallsBackToRandom(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	m := &fixedModel{answer: model.CellBomb}
	a := newTestAgent(t, g, m)

	a.MoveAutonomous()
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 2, a.State().Steps)
	assert.Contains(t, []model.Position{{X: 0, Y: 1}, {X: 1, Y: 0}}, a.Position())
}

func TestMoveRandomPrefersUnvisited(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		g := newTestGrid(t, 3, nil, nil)
		a, err := New(Config{ID: "a1"}, &fixedModel{}, g, rand.New(rand.NewSource(seed)), nil)
		require.NoError(t, err)
		a.Step()
		require.True(t, a.MoveTo(0, 1))
		require.True(t, a.MoveTo(1, 1))
		require.True(t, a.MoveTo(1, 0))

		require.True(t, a.MoveRandom())
		assert.Equal(t, model.Position{X: 2, Y: 0}, a.Position(), "seed %d", seed)
	}
}

func TestMoveRandomAllVisitedStillMoves(t *testing.T) {
	g := newTestGrid(t, 2, nil, nil)
	a := newTestAgent(t, g, &fixedModel{})
	require.True(t, a.MoveTo(1, 0))
	require.True(t, a.MoveTo(1, 1))
	require.True(t, a.MoveTo(0, 1))
	require.True(t, a.MoveTo(0, 0))

	// Both neighbors are visited; (0,1) is the previous cell and gets rejected.
	steps := a.State().Steps
	for i := 0; i < 64 && a.State().Steps == steps; i++ {
		a.MoveRandom()
	}
	assert.Equal(t, model.Position{X: 1, Y: 0}, a.Position())
}

func TestOnlineTrainingFeedsLearner(t *testing.T) {
	g := newTestGrid(t, 3, nil, nil)
	nb := decision.NewNaiveBayes(g, nil)
	a, err := New(Config{ID: "nb", OnlineTraining: true}, nb, g, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	a.Step()
	require.Zero(t, nb.Samples())

	a.MoveAutonomous()
	assert.Equal(t, 1, nb.Samples())
	// Untrained NaiveBayes answers free, so the first neighbor (down) is taken.
	assert.Equal(t, model.Position{X: 0, Y: 1}, a.Position())
}
