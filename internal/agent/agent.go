package agent

import (
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"

	"gridsim/internal/decision"
	"gridsim/internal/model"
)

// Environment is the grid surface an agent moves on.
type Environment interface {
	CellAt(x, y int) (model.Cell, bool)
	NeighborsOf(x, y int) []model.Cell
	RecordDiscovery(x, y int, t model.CellType) bool
}

type Config struct {
	ID    string
	Start model.Position
	// OnlineTraining feeds every committed autonomous move back into models
	// that learn online.
	OnlineTraining bool
}

// Agent walks the grid driven by a decision model. Once destroyed it ignores
// every further move.
type Agent struct {
	id     string
	model  decision.Model
	env    Environment
	rng    *rand.Rand
	log    logrus.FieldLogger
	start  model.Position
	online bool

	spawned       bool
	pos           model.Position
	prev          model.Position
	hasPrev       bool
	steps         int
	cost          float64
	bombsSurvived int
	treasures     int
	strength      int
	visited       map[model.Position]struct{}
	alive         bool
}

func New(cfg Config, m decision.Model, env Environment, rng *rand.Rand, log logrus.FieldLogger) (*Agent, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent id is required")
	}
	if m == nil {
		return nil, errors.New("decision model is required")
	}
	if env == nil {
		return nil, errors.New("environment is required")
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Agent{
		id:      cfg.ID,
		model:   m,
		env:     env,
		rng:     rng,
		log:     log.WithFields(logrus.Fields{"agent": cfg.ID, "model": m.Name()}),
		start:   cfg.Start,
		online:  cfg.OnlineTraining,
		visited: make(map[model.Position]struct{}),
		alive:   true,
	}, nil
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Model() decision.Model {
	return a.model
}

func (a *Agent) Alive() bool {
	return a.alive
}

func (a *Agent) Position() model.Position {
	return a.pos
}

func (a *Agent) Visited(x, y int) bool {
	_, ok := a.visited[model.Position{X: x, Y: y}]
	return ok
}

// Step advances the agent by one tick. The first tick moves it onto its
// start cell; later ticks move autonomously.
func (a *Agent) Step() {
	if !a.alive {
		return
	}
	if !a.spawned {
		a.spawned = true
		a.MoveTo(a.start.X, a.start.Y)
		return
	}
	a.MoveAutonomous()
}

// MoveTo commits a move onto (x,y). It reports false without touching any
// state when the agent is destroyed, the cell does not exist, or the target
// is the position the agent just left.
func (a *Agent) MoveTo(x, y int) bool {
	if !a.alive {
		return false
	}
	cell, ok := a.env.CellAt(x, y)
	if !ok {
		return false
	}
	target := model.Position{X: x, Y: y}
	if a.hasPrev && a.prev == target {
		a.log.WithFields(logrus.Fields{"x": x, "y": y}).Debug("move back to previous cell rejected")
		return false
	}

	// The spawn move has no previous cell.
	if a.steps > 0 {
		a.prev = a.pos
		a.hasPrev = true
	}
	a.pos = target
	a.steps++
	a.cost += cell.Cost
	a.visited[target] = struct{}{}
	a.env.RecordDiscovery(x, y, cell.Type)

	switch cell.Type {
	case model.CellBomb:
		if a.strength > 0 {
			a.strength--
			a.bombsSurvived++
			a.log.WithFields(logrus.Fields{"x": x, "y": y, "strength": a.strength}).Debug("bomb defused")
		} else {
			a.alive = false
			a.log.WithFields(logrus.Fields{"x": x, "y": y}).Info("agent destroyed by bomb")
		}
	case model.CellTreasure:
		a.strength++
		a.treasures++
		a.log.WithFields(logrus.Fields{"x": x, "y": y, "strength": a.strength}).Debug("treasure found")
	}
	return true
}

// MoveAutonomous moves to the first neighbor, in up/down/left/right order,
// whose type matches the model's prediction. Without a match it explores
// randomly instead.
func (a *Agent) MoveAutonomous() {
	if !a.alive {
		return
	}
	neighbors := a.env.NeighborsOf(a.pos.X, a.pos.Y)
	current, _ := a.env.CellAt(a.pos.X, a.pos.Y)
	predicted := a.model.Predict(current, neighbors)

	moved := false
	matched := false
	for _, n := range neighbors {
		if n.Type == predicted {
			matched = true
			moved = a.MoveTo(n.X, n.Y)
			break
		}
	}
	if !matched {
		moved = a.MoveRandom()
	}
	if moved && a.online {
		a.trainOnline()
	}
}

func (a *Agent) trainOnline() {
	learner, ok := a.model.(decision.OnlineLearner)
	if !ok {
		return
	}
	cell, ok := a.env.CellAt(a.pos.X, a.pos.Y)
	if !ok {
		return
	}
	learner.Train(cell, a.env.NeighborsOf(a.pos.X, a.pos.Y))
}

// MoveRandom moves to a uniformly chosen unvisited neighbor, or to any
// neighbor when all of them have been visited.
func (a *Agent) MoveRandom() bool {
	if !a.alive {
		return false
	}
	neighbors := a.env.NeighborsOf(a.pos.X, a.pos.Y)
	if len(neighbors) == 0 {
		return false
	}
	unvisited := make([]model.Cell, 0, len(neighbors))
	for _, n := range neighbors {
		if !a.Visited(n.X, n.Y) {
			unvisited = append(unvisited, n)
		}
	}
	candidates := neighbors
	if len(unvisited) > 0 {
		candidates = unvisited
	}
	next := candidates[a.rng.Intn(len(candidates))]
	return a.MoveTo(next.X, next.Y)
}

// State returns a read-only snapshot of the agent's counters.
func (a *Agent) State() model.AgentState {
	return model.AgentState{
		ID:            a.id,
		Model:         a.model.Name(),
		X:             a.pos.X,
		Y:             a.pos.Y,
		Steps:         a.steps,
		Cost:          a.cost,
		BombsSurvived: a.bombsSurvived,
		Treasures:     a.treasures,
		Strength:      a.strength,
		Alive:         a.alive,
	}
}
