package decision

import (
	"context"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
	"gridsim/internal/nn"
)

// networkInputSize holds one slot per neighbor direction; missing neighbors read as free.
const networkInputSize = 4

const (
	treasureSignal = 1.0
	bombSignal     = -1.0
	freeSignal     = 0.0
	// predictThreshold splits the network output into treasure or bomb.
	predictThreshold = 0.5
)

type NetworkConfig struct {
	HiddenSize   int
	MemorySize   int
	LearningRate float64
	MemoryMode   string
	// Activation names an nn activation; empty means sigmoid.
	Activation string
}

// Network wraps a memory network. It only ever answers treasure or bomb.
type Network struct {
	diagnostics
	env NeighborSource

	mu      sync.Mutex
	net     *nn.MemoryNetwork
	samples int
}

func NewNetwork(cfg NetworkConfig, env NeighborSource, rng *rand.Rand, log logrus.FieldLogger) (*Network, error) {
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = DefaultHiddenSize
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultMemorySize
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	net, err := nn.NewMemoryNetwork(nn.MemoryNetworkConfig{
		InputSize:    networkInputSize,
		HiddenSize:   cfg.HiddenSize,
		MemorySize:   cfg.MemorySize,
		LearningRate: cfg.LearningRate,
		Mode:         nn.MemoryMode(cfg.MemoryMode),
		Activation:   cfg.Activation,
	}, rng)
	if err != nil {
		return nil, err
	}
	m := &Network{env: env, net: net}
	m.diagnostics.init(KindNetwork, log)
	return m, nil
}

func encodeNeighbors(neighbors []model.Cell) []float64 {
	input := make([]float64, networkInputSize)
	for i, c := range neighbors {
		if i >= networkInputSize {
			break
		}
		switch c.Type {
		case model.CellTreasure:
			input[i] = treasureSignal
		case model.CellBomb:
			input[i] = bombSignal
		default:
			input[i] = freeSignal
		}
	}
	return input
}

func (m *Network) Fit(ctx context.Context, records []model.Record) error {
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

// Train runs one forward pass and one backpropagation step. Treasure cells
// target +1 and every other cell -1.
func (m *Network) Train(current model.Cell, neighbors []model.Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := bombSignal
	if current.Type == model.CellTreasure {
		target = treasureSignal
	}
	if _, err := m.net.Forward(encodeNeighbors(neighbors)); err != nil {
		m.log.WithError(err).Error("forward pass failed")
		return
	}
	if err := m.net.Backpropagate(target); err != nil {
		m.log.WithError(err).Error("backpropagation failed")
		return
	}
	m.samples++
}

// Predict thresholds the network output. Before any training the random
// initial weights still answer, and the call is counted as untrained.
func (m *Network) Predict(_ model.Cell, neighbors []model.Cell) model.CellType {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples == 0 {
		m.untrained.Add(1)
		m.log.Debug("prediction from untrained network weights")
	}
	out, err := m.net.Forward(encodeNeighbors(neighbors))
	if err != nil {
		m.log.WithError(err).Error("forward pass failed")
		return model.CellBomb
	}
	if out >= predictThreshold {
		return model.CellTreasure
	}
	return model.CellBomb
}

func (m *Network) Trained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples > 0
}

func (m *Network) Diagnostics() model.ModelDiagnostics {
	return m.snapshot(m.Trained())
}
