package decision

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownModel = errors.New("unknown decision model")
	ErrModelExists  = errors.New("decision model already registered")
)

const (
	KindKNN          = "knn"
	KindNaiveBayes   = "naive_bayes"
	KindDecisionTree = "decision_tree"
	KindNetwork      = "network"
)

// Params carries the per-model hyperparameters; zero values take defaults.
type Params struct {
	K            int     `json:"k"`
	MaxDepth     int     `json:"max_depth"`
	HiddenSize   int     `json:"hidden_size"`
	MemorySize   int     `json:"memory_size"`
	LearningRate float64 `json:"learning_rate"`
	MemoryMode   string  `json:"memory_mode"`
	Activation   string  `json:"activation"`
}

const (
	DefaultK            = 3
	DefaultMaxDepth     = 5
	DefaultHiddenSize   = 10
	DefaultMemorySize   = 6
	DefaultLearningRate = 0.2
)

func (p Params) withDefaults() Params {
	if p.K <= 0 {
		p.K = DefaultK
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.HiddenSize <= 0 {
		p.HiddenSize = DefaultHiddenSize
	}
	if p.MemorySize <= 0 {
		p.MemorySize = DefaultMemorySize
	}
	if p.LearningRate <= 0 {
		p.LearningRate = DefaultLearningRate
	}
	return p
}

// Deps are the collaborators a model may need.
type Deps struct {
	Env    Environment
	Rand   *rand.Rand
	Logger logrus.FieldLogger
}

type Constructor func(params Params, deps Deps) (Model, error)

var modelRegistry = struct {
	mu sync.RWMutex
	m  map[string]Constructor
}{
	m: make(map[string]Constructor),
}

func init() {
	initializeBuiltInModels()
}

func initializeBuiltInModels() {
	MustRegister(KindKNN, func(p Params, d Deps) (Model, error) {
		return NewKNN(p.K, d.Logger), nil
	})
	MustRegister(KindNaiveBayes, func(_ Params, d Deps) (Model, error) {
		return NewNaiveBayes(d.Env, d.Logger), nil
	})
	MustRegister(KindDecisionTree, func(p Params, d Deps) (Model, error) {
		return NewDecisionTree(p.MaxDepth, d.Logger), nil
	})
	MustRegister(KindNetwork, func(p Params, d Deps) (Model, error) {
		m, err := NewNetwork(NetworkConfig{
			HiddenSize:   p.HiddenSize,
			MemorySize:   p.MemorySize,
			LearningRate: p.LearningRate,
			MemoryMode:   p.MemoryMode,
			Activation:   p.Activation,
		}, d.Env, d.Rand, d.Logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

func Register(kind string, ctor Constructor) error {
	if kind == "" {
		return errors.New("model kind is required")
	}
	if ctor == nil {
		return errors.New("model constructor is required")
	}

	modelRegistry.mu.Lock()
	defer modelRegistry.mu.Unlock()

	if _, exists := modelRegistry.m[kind]; exists {
		return fmt.Errorf("%w: %s", ErrModelExists, kind)
	}
	modelRegistry.m[kind] = ctor
	return nil
}

func MustRegister(kind string, ctor Constructor) {
	if err := Register(kind, ctor); err != nil {
		panic(err)
	}
}

// NormalizeKind maps user-facing names, including the short agent labels
// KNN/NB/AD/NN, to registered kinds.
func NormalizeKind(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "knn", "nearest_neighbors":
		return KindKNN
	case "nb", "bayes", "naive_bayes":
		return KindNaiveBayes
	case "ad", "tree", "decision_tree":
		return KindDecisionTree
	case "nn", "rn", "network", "neural_network":
		return KindNetwork
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// New builds a model of the given kind with defaults applied to params.
func New(kind string, params Params, deps Deps) (Model, error) {
	normalized := NormalizeKind(kind)

	modelRegistry.mu.RLock()
	ctor, ok := modelRegistry.m[normalized]
	modelRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, kind)
	}
	return ctor(params.withDefaults(), deps)
}

func ListKinds() []string {
	modelRegistry.mu.RLock()
	defer modelRegistry.mu.RUnlock()

	kinds := make([]string, 0, len(modelRegistry.m))
	for kind := range modelRegistry.m {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func resetModelRegistryForTests() {
	modelRegistry.mu.Lock()
	modelRegistry.m = make(map[string]Constructor)
	modelRegistry.mu.Unlock()
	initializeBuiltInModels()
}
