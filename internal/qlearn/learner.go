package qlearn

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

const (
	DefaultAlpha          = 0.1
	DefaultGamma          = 0.9
	DefaultEpsilon        = 0.2
	DefaultRevisitPenalty = 0.5
)

// Environment is the grid surface the learner moves on.
type Environment interface {
	Size() int
	CellAt(x, y int) (model.Cell, bool)
	NeighborsOf(x, y int) []model.Cell
}

type Config struct {
	Alpha          float64         `json:"alpha"`
	Gamma          float64         `json:"gamma"`
	Epsilon        float64         `json:"epsilon"`
	RevisitPenalty float64         `json:"revisit_penalty"`
	Start          model.Position  `json:"start"`
	Target         *model.Position `json:"target,omitempty"`
}

func (c Config) validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be within (0,1], got %f", c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be within [0,1], got %f", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be within [0,1], got %f", c.Epsilon)
	}
	if c.RevisitPenalty < 0 {
		return fmt.Errorf("revisit penalty must be >= 0, got %f", c.RevisitPenalty)
	}
	return nil
}

// DefaultConfig returns the standard learning rate, discount, exploration
// rate and revisit penalty.
func DefaultConfig() Config {
	return Config{
		Alpha:          DefaultAlpha,
		Gamma:          DefaultGamma,
		Epsilon:        DefaultEpsilon,
		RevisitPenalty: DefaultRevisitPenalty,
	}
}

// Learner is an epsilon-greedy tabular controller that walks the grid until
// it reaches its target cell.
type Learner struct {
	cfg   Config
	env   Environment
	rng   *rand.Rand
	log   logrus.FieldLogger
	table *Table

	pos       model.Position
	target    model.Position
	steps     int
	cost      float64
	bombs     int
	treasures int
	visited   map[model.Position]struct{}
	episode   int
	done      bool
}

func New(cfg Config, env Environment, rng *rand.Rand, log logrus.FieldLogger) (*Learner, error) {
	if env == nil {
		return nil, errors.New("environment is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, ok := env.CellAt(cfg.Start.X, cfg.Start.Y); !ok {
		return nil, fmt.Errorf("learner start %s is outside the grid", cfg.Start)
	}
	if cfg.Target != nil {
		if _, ok := env.CellAt(cfg.Target.X, cfg.Target.Y); !ok {
			return nil, fmt.Errorf("learner target %s is outside the grid", *cfg.Target)
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	l := &Learner{
		cfg:   cfg,
		env:   env,
		rng:   rng,
		log:   log.WithField("agent", "learner"),
		table: NewTable(),
	}
	l.Reset()
	return l, nil
}

// Reset starts a new episode from the start cell. The Q-table carries over.
func (l *Learner) Reset() {
	l.pos = l.cfg.Start
	l.steps = 0
	l.cost = 0
	l.bombs = 0
	l.treasures = 0
	l.visited = make(map[model.Position]struct{})
	l.done = false
	l.episode++
	if l.cfg.Target != nil {
		l.target = *l.cfg.Target
	} else {
		size := l.env.Size()
		l.target = model.Position{X: l.rng.Intn(size), Y: l.rng.Intn(size)}
	}
	l.log.WithFields(logrus.Fields{"episode": l.episode, "target": l.target.Key()}).Debug("learner episode started")
}

func (l *Learner) Config() Config {
	return l.cfg
}

func (l *Learner) Table() *Table {
	return l.table
}

func (l *Learner) Done() bool {
	return l.done
}

func (l *Learner) Position() model.Position {
	return l.pos
}

func (l *Learner) Target() model.Position {
	return l.target
}

// ChooseAction picks the next cell. Every in-bounds neighbor's entry is
// created before the choice. With probability epsilon a neighbor is drawn
// uniformly; otherwise the neighbor with the highest value wins, visited
// neighbors scored lower by the revisit penalty and ties going to the first
// in up/down/left/right order.
func (l *Learner) ChooseAction() (model.Cell, bool) {
	neighbors := l.env.NeighborsOf(l.pos.X, l.pos.Y)
	if len(neighbors) == 0 {
		return model.Cell{}, false
	}
	values := make([]float64, len(neighbors))
	for i, n := range neighbors {
		values[i] = l.table.Value(n.Position())
	}

	if l.rng.Float64() < l.cfg.Epsilon {
		return neighbors[l.rng.Intn(len(neighbors))], true
	}

	best := -1
	bestValue := 0.0
	for i, n := range neighbors {
		v := values[i]
		if _, seen := l.visited[n.Position()]; seen {
			v -= l.cfg.RevisitPenalty
		}
		if best < 0 || v > bestValue {
			best = i
			bestValue = v
		}
	}
	return neighbors[best], true
}

// Step commits one move and updates the chosen action's value with reward
// -cost. It reports false once the target has been reached.
func (l *Learner) Step() bool {
	if l.done {
		return false
	}
	next, ok := l.ChooseAction()
	if !ok {
		return false
	}

	l.pos = next.Position()
	l.steps++
	l.cost += next.Cost
	l.visited[l.pos] = struct{}{}
	q := l.table.Update(l.pos, -next.Cost, l.cfg.Alpha, l.cfg.Gamma)

	switch next.Type {
	case model.CellBomb:
		l.bombs++
	case model.CellTreasure:
		l.treasures++
	}
	l.log.WithFields(logrus.Fields{"x": l.pos.X, "y": l.pos.Y, "q": q}).Debug("learner moved")

	if l.pos == l.target {
		l.done = true
		l.log.WithFields(logrus.Fields{"steps": l.steps, "cost": l.cost}).Info("learner reached target")
	}
	return true
}

func (l *Learner) State() model.LearnerState {
	return model.LearnerState{
		X:         l.pos.X,
		Y:         l.pos.Y,
		TargetX:   l.target.X,
		TargetY:   l.target.Y,
		Steps:     l.steps,
		Cost:      l.cost,
		Bombs:     l.bombs,
		Treasures: l.treasures,
		Episode:   l.episode,
		Done:      l.done,
	}
}
