package decision

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/grid"
	"gridsim/internal/model"
)

func TestNetworkNeverPredictsFree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m, err := NewNetwork(NetworkConfig{}, nil, rng, nil)
	require.NoError(t, err)

	types := model.CellTypes
	for i := 0; i < 200; i++ {
		neighbors := make([]model.Cell, rng.Intn(5))
		for j := range neighbors {
			neighbors[j] = model.Cell{X: rng.Intn(10), Y: rng.Intn(10), Type: types[rng.Intn(len(types))]}
		}
		got := m.Predict(model.Cell{}, neighbors)
		assert.Contains(t, []model.CellType{model.CellTreasure, model.CellBomb}, got)
		if i%3 == 0 {
			m.Train(model.Cell{Type: types[rng.Intn(len(types))]}, neighbors)
		}
	}
}

func TestNetworkUntrainedPredictionsAreCounted(t *testing.T) {
	m, err := NewNetwork(NetworkConfig{}, nil, rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)

	assert.False(t, m.Trained())
	m.Predict(model.Cell{}, nil)
	assert.Equal(t, int64(1), m.Diagnostics().UntrainedPredictions)

	m.Train(model.Cell{Type: model.CellTreasure}, nil)
	assert.True(t, m.Trained())
	m.Predict(model.Cell{}, nil)
	assert.Equal(t, int64(1), m.Diagnostics().UntrainedPredictions)
}

func TestNetworkLearnsTreasureNeighborhood(t *testing.T) {
	m, err := NewNetwork(NetworkConfig{LearningRate: 0.5}, nil, rand.New(rand.NewSource(3)), nil)
	require.NoError(t, err)

	treasures := []model.Cell{{Type: model.CellTreasure}, {Type: model.CellTreasure}}
	for i := 0; i < 300; i++ {
		m.Train(model.Cell{Type: model.CellTreasure}, treasures)
	}
	assert.Equal(t, model.CellTreasure, m.Predict(model.Cell{}, treasures))
}

func TestNetworkFitUsesGridNeighbors(t *testing.T) {
	g, err := grid.New(3)
	require.NoError(t, err)
	m, err := NewNetwork(NetworkConfig{}, g, rand.New(rand.NewSource(5)), nil)
	require.NoError(t, err)

	require.NoError(t, m.Fit(context.Background(), []model.Record{
		{X: 1, Y: 1, Type: model.CellBomb, Cost: -1},
		{X: 0, Y: 0, Type: model.CellTreasure, Cost: 1.5},
	}))
	assert.True(t, m.Trained())
}

func TestNetworkRejectsUnknownMemoryMode(t *testing.T) {
	_, err := NewNetwork(NetworkConfig{MemoryMode: "sideways"}, nil, rand.New(rand.NewSource(1)), nil)
	require.Error(t, err)
}

func TestNetworkActivationIsConfigurable(t *testing.T) {
	m, err := New(KindNetwork, Params{Activation: "tanh"}, Deps{Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, err)
	network, ok := m.(*Network)
	require.True(t, ok)
	assert.Equal(t, "tanh", network.net.Config().Activation)

	treasures := []model.Cell{{Type: model.CellTreasure}, {Type: model.CellTreasure}}
	for i := 0; i < 300; i++ {
		network.Train(model.Cell{Type: model.CellTreasure}, treasures)
	}
	assert.Equal(t, model.CellTreasure, network.Predict(model.Cell{}, treasures))

	plain, err := NewNetwork(NetworkConfig{}, nil, rand.New(rand.NewSource(3)), nil)
	require.NoError(t, err)
	assert.Equal(t, "sigmoid", plain.net.Config().Activation)

	_, err = NewNetwork(NetworkConfig{Activation: "softsign"}, nil, rand.New(rand.NewSource(1)), nil)
	require.Error(t, err)
}

func TestEncodeNeighbors(t *testing.T) {
	got := encodeNeighbors([]model.Cell{
		{Type: model.CellBomb},
		{Type: model.CellTreasure},
		{Type: model.CellFree},
	})
	assert.Equal(t, []float64{-1, 1, 0, 0}, got)
}
