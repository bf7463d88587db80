package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"gridsim/internal/agent"
	"gridsim/internal/decision"
	"gridsim/internal/grid"
	"gridsim/internal/model"
	"gridsim/internal/qlearn"
)

var ErrUnknownAgent = errors.New("unknown agent")

type AgentSpec struct {
	ID    string         `json:"id,omitempty"`
	Model string         `json:"model"`
	Start model.Position `json:"start"`
}

type Config struct {
	GridSize       int             `json:"grid_size"`
	Bombs          int             `json:"bombs"`
	Treasures      int             `json:"treasures"`
	Seed           int64           `json:"seed"`
	Agents         []AgentSpec     `json:"agents"`
	Models         decision.Params `json:"models"`
	OnlineTraining bool            `json:"online_training"`
	EnableLearner  bool            `json:"enable_learner"`
	Learner        qlearn.Config   `json:"learner"`
}

const (
	DefaultGridSize  = 10
	DefaultBombs     = 10
	DefaultTreasures = 3
	DefaultMaxTicks  = 200
)

// DefaultAgents is three nearest-neighbor agents, one naive-Bayes agent and
// one decision-tree agent, all starting at the origin.
func DefaultAgents() []AgentSpec {
	return []AgentSpec{
		{ID: "knn-1", Model: decision.KindKNN},
		{ID: "knn-2", Model: decision.KindKNN},
		{ID: "knn-3", Model: decision.KindKNN},
		{ID: "nb-1", Model: decision.KindNaiveBayes},
		{ID: "ad-1", Model: decision.KindDecisionTree},
	}
}

func DefaultConfig() Config {
	return Config{
		GridSize:       DefaultGridSize,
		Bombs:          DefaultBombs,
		Treasures:      DefaultTreasures,
		Seed:           1,
		Agents:         DefaultAgents(),
		OnlineTraining: true,
		EnableLearner:  true,
		Learner:        qlearn.DefaultConfig(),
	}
}

// Simulation owns one grid, the models shared by its agents, the agents and
// the optional tabular learner. Ticks run agents in configuration order,
// then the learner.
type Simulation struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.RWMutex
	grid    *grid.Grid
	models  []decision.Model
	agents  []*agent.Agent
	byID    map[string]*agent.Agent
	learner *qlearn.Learner
	tick    int
	history []model.TickSummary
}

func New(cfg Config, log logrus.FieldLogger) (*Simulation, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = DefaultGridSize
	}
	if cfg.Bombs < 0 || cfg.Treasures < 0 {
		return nil, fmt.Errorf("bomb and treasure counts must be >= 0: bombs=%d treasures=%d", cfg.Bombs, cfg.Treasures)
	}
	if len(cfg.Agents) == 0 && !cfg.EnableLearner {
		return nil, errors.New("at least one agent or the learner is required")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	g, err := grid.New(cfg.GridSize)
	if err != nil {
		return nil, err
	}
	if _, err := g.PlaceRandom(rng, model.CellBomb, model.BombCost, cfg.Bombs); err != nil {
		return nil, fmt.Errorf("place bombs: %w", err)
	}
	if _, err := g.PlaceRandom(rng, model.CellTreasure, model.TreasureCost, cfg.Treasures); err != nil {
		return nil, fmt.Errorf("place treasures: %w", err)
	}

	s := &Simulation{
		cfg:  cfg,
		log:  log,
		grid: g,
		byID: make(map[string]*agent.Agent, len(cfg.Agents)),
	}

	shared := make(map[string]decision.Model)
	perKind := make(map[string]int)
	for i, spec := range cfg.Agents {
		kind := decision.NormalizeKind(spec.Model)
		m, ok := shared[kind]
		if !ok {
			m, err = decision.New(kind, cfg.Models, decision.Deps{Env: g, Rand: rng, Logger: log})
			if err != nil {
				return nil, fmt.Errorf("agent %d: %w", i, err)
			}
			shared[kind] = m
			s.models = append(s.models, m)
		}
		perKind[kind]++
		id := spec.ID
		if id == "" {
			id = kind + "-" + strconv.Itoa(perKind[kind])
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("duplicate agent id: %s", id)
		}
		a, err := agent.New(agent.Config{ID: id, Start: spec.Start, OnlineTraining: cfg.OnlineTraining}, m, g, rng, log)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", id, err)
		}
		s.agents = append(s.agents, a)
		s.byID[id] = a
	}

	if cfg.EnableLearner {
		s.learner, err = qlearn.New(cfg.Learner, g, rng, log)
		if err != nil {
			return nil, fmt.Errorf("learner: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"grid_size": cfg.GridSize,
		"bombs":     cfg.Bombs,
		"treasures": cfg.Treasures,
		"agents":    len(s.agents),
		"learner":   cfg.EnableLearner,
	}).Info("simulation created")
	return s, nil
}

func (s *Simulation) Config() Config {
	return s.cfg
}

// Grid exposes the shared grid for read-only observers.
func (s *Simulation) Grid() *grid.Grid {
	return s.grid
}

// Train fits every distinct model once with records.
func (s *Simulation) Train(ctx context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.models {
		if err := m.Fit(ctx, records); err != nil {
			return fmt.Errorf("fit %s: %w", m.Name(), err)
		}
		s.log.WithFields(logrus.Fields{"model": m.Name(), "records": len(records)}).Info("model trained")
	}
	return nil
}

// Tick advances every live agent and the learner by one move and returns the
// resulting snapshot.
func (s *Simulation) Tick(ctx context.Context) (model.TickSummary, error) {
	if err := ctx.Err(); err != nil {
		return model.TickSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	for _, a := range s.agents {
		a.Step()
	}
	if s.learner != nil {
		s.learner.Step()
	}
	summary := s.summaryLocked()
	s.history = append(s.history, summary)
	return summary, nil
}

// Run ticks until maxTicks is reached, the simulation is done, or ctx ends.
// A maxTicks of zero or less means DefaultMaxTicks. onTick, when set, sees
// every summary as soon as its tick completes.
func (s *Simulation) Run(ctx context.Context, maxTicks int, onTick func(model.TickSummary)) ([]model.TickSummary, error) {
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}
	var out []model.TickSummary
	for len(out) < maxTicks {
		if s.Done() {
			break
		}
		summary, err := s.Tick(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, summary)
		if onTick != nil {
			onTick(summary)
		}
	}
	return out, nil
}

func (s *Simulation) summaryLocked() model.TickSummary {
	summary := model.TickSummary{
		Tick:   s.tick,
		Agents: make([]model.AgentState, 0, len(s.agents)),
		Models: make([]model.ModelDiagnostics, 0, len(s.models)),
	}
	for _, a := range s.agents {
		summary.Agents = append(summary.Agents, a.State())
	}
	if s.learner != nil {
		state := s.learner.State()
		summary.Learner = &state
	}
	for _, m := range s.models {
		summary.Models = append(summary.Models, m.Diagnostics())
	}
	return summary
}

// Snapshot returns the current state without advancing.
func (s *Simulation) Snapshot() model.TickSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Simulation) Ticks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// History returns every tick summary produced so far.
func (s *Simulation) History() []model.TickSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.TickSummary(nil), s.history...)
}

func (s *Simulation) Agent(id string) (model.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return model.AgentState{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a.State(), nil
}

// QTable returns the learner's table, or nil without a learner.
func (s *Simulation) QTable() []model.QValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.learner == nil {
		return nil
	}
	return s.learner.Table().Snapshot()
}

func (s *Simulation) Discoveries() []model.Cell {
	return s.grid.Discoveries()
}

// ResetLearner starts a new learner episode keeping its table.
func (s *Simulation) ResetLearner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.learner == nil {
		return false
	}
	s.learner.Reset()
	return true
}

// Done reports whether no further tick can change anything: every agent is
// destroyed and the learner, if any, has reached its target.
func (s *Simulation) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.Alive() {
			return false
		}
	}
	return s.learner == nil || s.learner.Done()
}
