package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/model"
)

func TestKNNSinglePointPredictsItsClass(t *testing.T) {
	m := NewKNN(1, nil)
	require.NoError(t, m.Fit(context.Background(), []model.Record{
		{X: 0, Y: 0, Type: model.CellTreasure, Cost: model.TreasureCost},
	}))

	for _, q := range []model.Cell{{X: 0, Y: 0}, {X: 9, Y: 9}, {X: 3, Y: 7, Type: model.CellBomb}} {
		assert.Equal(t, model.CellTreasure, m.Predict(q, nil), "query %v", q)
	}
}

func TestKNNMajorityOfNearest(t *testing.T) {
	m := NewKNN(3, nil)
	require.NoError(t, m.Fit(context.Background(), []model.Record{
		{X: 0, Y: 0, Type: model.CellBomb},
		{X: 0, Y: 1, Type: model.CellBomb},
		{X: 1, Y: 0, Type: model.CellTreasure},
		{X: 9, Y: 9, Type: model.CellTreasure},
		{X: 9, Y: 8, Type: model.CellTreasure},
	}))
	assert.Equal(t, model.CellBomb, m.Predict(model.Cell{X: 0, Y: 0}, nil))
	assert.Equal(t, model.CellTreasure, m.Predict(model.Cell{X: 9, Y: 9}, nil))
}

func TestKNNTieGoesToFirstInSortedOrder(t *testing.T) {
	m := NewKNN(2, nil)
	require.NoError(t, m.Fit(context.Background(), []model.Record{
		{X: 2, Y: 0, Type: model.CellBomb},
		{X: 1, Y: 0, Type: model.CellTreasure},
	}))
	// One vote each; (1,0) is nearer and sorts first.
	assert.Equal(t, model.CellTreasure, m.Predict(model.Cell{X: 1, Y: 1}, nil))

	require.NoError(t, m.Fit(context.Background(), []model.Record{
		{X: 0, Y: 1, Type: model.CellBomb},
		{X: 2, Y: 1, Type: model.CellTreasure},
	}))
	// Equal distances keep dataset order under the stable sort.
	assert.Equal(t, model.CellBomb, m.Predict(model.Cell{X: 1, Y: 1}, nil))
}

func TestKNNRefitReplacesData(t *testing.T) {
	m := NewKNN(1, nil)
	require.NoError(t, m.Fit(context.Background(), []model.Record{{X: 0, Y: 0, Type: model.CellBomb}}))
	require.NoError(t, m.Fit(context.Background(), []model.Record{{X: 0, Y: 0, Type: model.CellTreasure}}))
	assert.Equal(t, model.CellTreasure, m.Predict(model.Cell{}, nil))
}

func TestKNNUntrainedDefaultsToFree(t *testing.T) {
	m := NewKNN(3, nil)
	assert.False(t, m.Trained())
	assert.Equal(t, model.CellFree, m.Predict(model.Cell{X: 1, Y: 1}, nil))
	assert.Equal(t, model.CellFree, m.Predict(model.Cell{X: 2, Y: 1}, nil))

	diag := m.Diagnostics()
	assert.Equal(t, KindKNN, diag.Name)
	assert.False(t, diag.Trained)
	assert.Equal(t, int64(2), diag.UntrainedPredictions)
}

func TestKNNFitHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewKNN(3, nil)
	require.ErrorIs(t, m.Fit(ctx, []model.Record{{X: 0, Y: 0, Type: model.CellBomb}}), context.Canceled)
	assert.False(t, m.Trained())
}
