package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MemoryMode selects which memory entry is concatenated to a new input.
type MemoryMode string

const (
	// MemoryAfterPush stores the input first and then reads the newest entry,
	// so the concatenated half repeats the input itself.
	MemoryAfterPush MemoryMode = "after_push"
	// MemoryBeforePush reads the newest entry before storing the input, giving
	// the network the previous observation as context.
	MemoryBeforePush MemoryMode = "before_push"
)

var ErrNoForwardPass = errors.New("backpropagation requires a prior forward pass")

type MemoryNetworkConfig struct {
	InputSize    int
	HiddenSize   int
	MemorySize   int
	LearningRate float64
	Mode         MemoryMode
	Activation   string
}

// MemoryNetwork is a single hidden layer network whose effective input is the
// raw input concatenated with one entry of a bounded recency buffer.
type MemoryNetwork struct {
	cfg MemoryNetworkConfig
	act Activation

	inputHidden  *mat.Dense
	hiddenOutput *mat.VecDense
	memory       [][]float64

	lastInput  *mat.VecDense
	lastHidden *mat.VecDense
	lastOutput float64
	forwarded  bool
}

func NewMemoryNetwork(cfg MemoryNetworkConfig, rng *rand.Rand) (*MemoryNetwork, error) {
	if cfg.InputSize <= 0 || cfg.HiddenSize <= 0 || cfg.MemorySize <= 0 {
		return nil, fmt.Errorf("network sizes must be > 0: input=%d hidden=%d memory=%d", cfg.InputSize, cfg.HiddenSize, cfg.MemorySize)
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %f", cfg.LearningRate)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = MemoryAfterPush
	case MemoryAfterPush, MemoryBeforePush:
	default:
		return nil, fmt.Errorf("unsupported memory mode: %s", cfg.Mode)
	}
	if cfg.Activation == "" {
		cfg.Activation = "sigmoid"
	}
	act, err := GetActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}

	combined := 2 * cfg.InputSize
	weights := make([]float64, cfg.HiddenSize*combined)
	for i := range weights {
		weights[i] = rng.Float64()*2 - 1
	}
	outWeights := make([]float64, cfg.HiddenSize)
	for i := range outWeights {
		outWeights[i] = rng.Float64()*2 - 1
	}
	memory := make([][]float64, cfg.MemorySize)
	for i := range memory {
		memory[i] = make([]float64, cfg.InputSize)
	}

	return &MemoryNetwork{
		cfg:          cfg,
		act:          act,
		inputHidden:  mat.NewDense(cfg.HiddenSize, combined, weights),
		hiddenOutput: mat.NewVecDense(cfg.HiddenSize, outWeights),
		memory:       memory,
	}, nil
}

func (n *MemoryNetwork) Config() MemoryNetworkConfig {
	return n.cfg
}

// Forward runs one pass and records the activations used by Backpropagate.
func (n *MemoryNetwork) Forward(input []float64) (float64, error) {
	if len(input) != n.cfg.InputSize {
		return 0, fmt.Errorf("input size mismatch: got=%d want=%d", len(input), n.cfg.InputSize)
	}
	raw := append([]float64(nil), input...)

	var recent []float64
	if n.cfg.Mode == MemoryBeforePush {
		recent = n.memory[0]
		n.push(raw)
	} else {
		n.push(raw)
		recent = n.memory[0]
	}

	combined := make([]float64, 0, 2*n.cfg.InputSize)
	combined = append(combined, raw...)
	combined = append(combined, recent...)
	x := mat.NewVecDense(len(combined), combined)

	hidden := mat.NewVecDense(n.cfg.HiddenSize, nil)
	hidden.MulVec(n.inputHidden, x)
	for i := 0; i < hidden.Len(); i++ {
		hidden.SetVec(i, n.act.Func(hidden.AtVec(i)))
	}

	output := n.act.Func(mat.Dot(n.hiddenOutput, hidden))

	n.lastInput = x
	n.lastHidden = hidden
	n.lastOutput = output
	n.forwarded = true
	return output, nil
}

// Backpropagate applies one online gradient step toward target using the
// activations of the latest forward pass.
func (n *MemoryNetwork) Backpropagate(target float64) error {
	if !n.forwarded {
		return ErrNoForwardPass
	}
	lr := n.cfg.LearningRate
	deltaOut := (target - n.lastOutput) * n.act.OutputDerivative(n.lastOutput)

	hiddenErr := make([]float64, n.cfg.HiddenSize)
	for i := range hiddenErr {
		h := n.lastHidden.AtVec(i)
		hiddenErr[i] = n.hiddenOutput.AtVec(i) * deltaOut * n.act.OutputDerivative(h)
	}

	for i := 0; i < n.cfg.HiddenSize; i++ {
		n.hiddenOutput.SetVec(i, n.hiddenOutput.AtVec(i)+lr*deltaOut*n.lastHidden.AtVec(i))
	}
	_, cols := n.inputHidden.Dims()
	for i := 0; i < n.cfg.HiddenSize; i++ {
		for j := 0; j < cols; j++ {
			n.inputHidden.Set(i, j, n.inputHidden.At(i, j)+lr*hiddenErr[i]*n.lastInput.AtVec(j))
		}
	}
	return nil
}

func (n *MemoryNetwork) push(input []float64) {
	n.memory = append([][]float64{input}, n.memory...)
	if len(n.memory) > n.cfg.MemorySize {
		n.memory = n.memory[:n.cfg.MemorySize]
	}
}

// Memory returns a copy of the recency buffer, newest first.
func (n *MemoryNetwork) Memory() [][]float64 {
	out := make([][]float64, len(n.memory))
	for i, entry := range n.memory {
		out[i] = append([]float64(nil), entry...)
	}
	return out
}

// OutputWeights returns a copy of the hidden-to-output weights.
func (n *MemoryNetwork) OutputWeights() []float64 {
	out := make([]float64, n.hiddenOutput.Len())
	for i := range out {
		out[i] = n.hiddenOutput.AtVec(i)
	}
	return out
}
