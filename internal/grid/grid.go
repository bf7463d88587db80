package grid

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gridsim/internal/model"
)

var (
	ErrInvalidSize         = errors.New("grid size must be > 0")
	ErrPlacementExhausted  = errors.New("placement exhausted free cells")
	ErrInvalidPlacement    = errors.New("invalid placement request")
	defaultRetryMultiplier = 64
)

// Direction offsets in the fixed neighbor order: up, down, left, right.
// Every consumer relies on this order as its tie-break.
var Directions = [4]model.Position{
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 1, Y: 0},
}

// Grid is an N×N arena of cells addressed by coordinate index. It also owns
// the shared discovery map and the exclusion set used during placement. All
// mutation goes through its methods so the invariants stay in one place.
type Grid struct {
	size int

	mu          sync.RWMutex
	cells       []model.Cell
	discoveries map[model.Position]model.CellType
	order       []model.Position
	excluded    map[model.Position]struct{}
}

func New(size int) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	cells := make([]model.Cell, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			cells = append(cells, model.Cell{X: x, Y: y, Type: model.CellFree, Cost: model.FreeCost})
		}
	}
	return &Grid{
		size:        size,
		cells:       cells,
		discoveries: make(map[model.Position]model.CellType),
		excluded:    make(map[model.Position]struct{}),
	}, nil
}

func (g *Grid) Size() int {
	return g.size
}

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.size && y >= 0 && y < g.size
}

func (g *Grid) index(x, y int) int {
	return y*g.size + x
}

// CellAt returns a copy of the cell at (x,y); ok is false out of bounds.
func (g *Grid) CellAt(x, y int) (model.Cell, bool) {
	if !g.InBounds(x, y) {
		return model.Cell{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(x, y)], true
}

// NeighborsOf returns the in-bounds axis-aligned neighbors in up, down, left, right order.
func (g *Grid) NeighborsOf(x, y int) []model.Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]model.Cell, 0, len(Directions))
	for _, d := range Directions {
		nx, ny := x+d.X, y+d.Y
		if !g.InBounds(nx, ny) {
			continue
		}
		out = append(out, g.cells[g.index(nx, ny)])
	}
	return out
}

// RecordDiscovery stores the type observed at (x,y) unless a value is already
// recorded. It reports whether this call wrote the entry.
func (g *Grid) RecordDiscovery(x, y int, t model.CellType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recordDiscoveryLocked(model.Position{X: x, Y: y}, t)
}

func (g *Grid) recordDiscoveryLocked(pos model.Position, t model.CellType) bool {
	if _, exists := g.discoveries[pos]; exists {
		return false
	}
	g.discoveries[pos] = t
	g.order = append(g.order, pos)
	return true
}

// Discovery returns the first type recorded at (x,y), or free when nothing was recorded.
func (g *Grid) Discovery(x, y int) model.CellType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.discoveries[model.Position{X: x, Y: y}]; ok {
		return t
	}
	return model.CellFree
}

// Discoveries returns the discovery map in insertion order.
func (g *Grid) Discoveries() []model.Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]model.Cell, 0, len(g.order))
	for _, pos := range g.order {
		t := g.discoveries[pos]
		out = append(out, model.Cell{X: pos.X, Y: pos.Y, Type: t, Cost: model.DefaultCost(t)})
	}
	return out
}

// ScaleCost multiplies the cost of (x,y) by factor and returns the new cost.
func (g *Grid) ScaleCost(x, y int, factor float64) (float64, bool) {
	if !g.InBounds(x, y) {
		return 0, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cell := &g.cells[g.index(x, y)]
	cell.Cost *= factor
	return cell.Cost, true
}

// Place sets one cell explicitly, claims it in the exclusion set and records the discovery.
func (g *Grid) Place(x, y int, t model.CellType, cost float64) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d) out of bounds", ErrInvalidPlacement, x, y)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: cell type %q", ErrInvalidPlacement, t)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimLocked(model.Position{X: x, Y: y}, t, cost)
	return nil
}

// PlaceRandom claims count positions not yet excluded, sampling uniformly with
// rejection. It fails fast when not enough unclaimed cells remain and bounds
// the number of draws so a pathological generator cannot loop forever.
func (g *Grid) PlaceRandom(rng *rand.Rand, t model.CellType, cost float64, count int) ([]model.Position, error) {
	if count < 0 || !t.Valid() {
		return nil, fmt.Errorf("%w: type=%q count=%d", ErrInvalidPlacement, t, count)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidPlacement)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	available := g.size*g.size - len(g.excluded)
	if count > available {
		return nil, fmt.Errorf("%w: requested %d %s, %d cells available", ErrPlacementExhausted, count, t, available)
	}

	placed := make([]model.Position, 0, count)
	maxDraws := (count + 1) * g.size * g.size * defaultRetryMultiplier
	for draws := 0; len(placed) < count; draws++ {
		if draws >= maxDraws {
			return placed, fmt.Errorf("%w: gave up after %d draws with %d/%d placed", ErrPlacementExhausted, draws, len(placed), count)
		}
		pos := model.Position{X: rng.Intn(g.size), Y: rng.Intn(g.size)}
		if _, taken := g.excluded[pos]; taken {
			continue
		}
		g.claimLocked(pos, t, cost)
		placed = append(placed, pos)
	}
	return placed, nil
}

func (g *Grid) claimLocked(pos model.Position, t model.CellType, cost float64) {
	cell := &g.cells[g.index(pos.X, pos.Y)]
	cell.Type = t
	cell.Cost = cost
	g.recordDiscoveryLocked(pos, t)
	g.excluded[pos] = struct{}{}
}

// Excluded reports whether (x,y) was claimed by a placement.
func (g *Grid) Excluded(x, y int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.excluded[model.Position{X: x, Y: y}]
	return ok
}

// Cells returns a row-major copy of every cell.
func (g *Grid) Cells() []model.Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]model.Cell(nil), g.cells...)
}
