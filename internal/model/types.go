package model

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// CellType is the observable kind of a grid position. The string values are
// the ones used by training files.
type CellType string

const (
	CellFree     CellType = "livre"
	CellBomb     CellType = "bomba"
	CellTreasure CellType = "tesouro"
)

// CellTypes lists every valid cell type in a fixed order.
var CellTypes = []CellType{CellFree, CellBomb, CellTreasure}

const (
	FreeCost     = 1.0
	BombCost     = -1.0
	TreasureCost = 1.5
)

// DefaultCost returns the traversal cost assigned to a freshly placed cell.
func DefaultCost(t CellType) float64 {
	switch t {
	case CellBomb:
		return BombCost
	case CellTreasure:
		return TreasureCost
	default:
		return FreeCost
	}
}

func (t CellType) Valid() bool {
	switch t {
	case CellFree, CellBomb, CellTreasure:
		return true
	default:
		return false
	}
}

// ParseCellType accepts the training-file spelling as well as english aliases.
func ParseCellType(raw string) (CellType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "livre", "free":
		return CellFree, nil
	case "bomba", "bomb":
		return CellBomb, nil
	case "tesouro", "treasure":
		return CellTreasure, nil
	default:
		return "", fmt.Errorf("unknown cell type %q", raw)
	}
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key renders the position as "x,y".
func (p Position) Key() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

func (p Position) String() string {
	return p.Key()
}

type Cell struct {
	X    int      `json:"x"`
	Y    int      `json:"y"`
	Type CellType `json:"type"`
	Cost float64  `json:"cost"`
}

func (c Cell) Position() Position {
	return Position{X: c.X, Y: c.Y}
}

// Record is one labeled training sample.
type Record struct {
	X    int      `json:"x"`
	Y    int      `json:"y"`
	Type CellType `json:"type"`
	Cost float64  `json:"cost"`
}

func (r Record) Cell() Cell {
	return Cell{X: r.X, Y: r.Y, Type: r.Type, Cost: r.Cost}
}

func (r Record) Position() Position {
	return Position{X: r.X, Y: r.Y}
}

// AgentState is the read-only view of one agent after a tick.
type AgentState struct {
	ID            string  `json:"id"`
	Model         string  `json:"model"`
	X             int     `json:"x"`
	Y             int     `json:"y"`
	Steps         int     `json:"steps"`
	Cost          float64 `json:"cost"`
	BombsSurvived int     `json:"bombs_survived"`
	Treasures     int     `json:"treasures"`
	Strength      int     `json:"strength"`
	Alive         bool    `json:"alive"`
}

// LearnerState is the read-only view of the tabular learner after a tick.
type LearnerState struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	TargetX   int     `json:"target_x"`
	TargetY   int     `json:"target_y"`
	Steps     int     `json:"steps"`
	Cost      float64 `json:"cost"`
	Bombs     int     `json:"bombs"`
	Treasures int     `json:"treasures"`
	Episode   int     `json:"episode"`
	Done      bool    `json:"done"`
}

// ModelDiagnostics reports per-model signals such as predictions served while untrained.
type ModelDiagnostics struct {
	Name                 string `json:"name"`
	Trained              bool   `json:"trained"`
	UntrainedPredictions int64  `json:"untrained_predictions"`
}

type QValue struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// TickSummary is the snapshot emitted after each simulation tick.
type TickSummary struct {
	Tick    int                `json:"tick"`
	Agents  []AgentState       `json:"agents"`
	Learner *LearnerState      `json:"learner,omitempty"`
	Models  []ModelDiagnostics `json:"models,omitempty"`
}

// RunRecord is the persisted header of one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string        `json:"id"`
	CreatedAtUTC string        `json:"created_at_utc"`
	Seed         int64         `json:"seed"`
	GridSize     int           `json:"grid_size"`
	Bombs        int           `json:"bombs"`
	Treasures    int           `json:"treasures"`
	Ticks        int           `json:"ticks"`
	Agents       []AgentState  `json:"agents"`
	Learner      *LearnerState `json:"learner,omitempty"`
}
