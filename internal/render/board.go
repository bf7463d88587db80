package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"

	"gridsim/internal/model"
)

// Board is the read-only grid view the renderer needs.
type Board interface {
	Size() int
	CellAt(x, y int) (model.Cell, bool)
	Discoveries() []model.Cell
}

type Options struct {
	Colors bool
	// RevealAll draws the true cell types. Otherwise only discovered cells
	// are shown and the rest print as unknown.
	RevealAll bool
}

// Frame is one tick worth of markers to draw on top of the board.
type Frame struct {
	Tick    int
	Agents  []model.AgentState
	Learner *model.LearnerState
}

const (
	glyphUnknown  = "?"
	glyphFree     = "."
	glyphBomb     = "B"
	glyphTreasure = "T"
	glyphAgent    = "A"
	glyphDead     = "x"
	glyphCrowd    = "*"
	glyphLearner  = "Q"
	glyphTarget   = "M"
)

type Renderer struct {
	au   aurora.Aurora
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{au: aurora.NewAurora(opts.Colors), opts: opts}
}

// Draw writes the board with rows top to bottom (y ascending) followed by a
// one-line status per agent.
func (r *Renderer) Draw(w io.Writer, board Board, frame Frame) error {
	size := board.Size()
	markers := make(map[model.Position][]model.AgentState, len(frame.Agents))
	for _, a := range frame.Agents {
		pos := model.Position{X: a.X, Y: a.Y}
		markers[pos] = append(markers[pos], a)
	}

	known := make(map[model.Position]model.CellType)
	for _, c := range board.Discoveries() {
		known[c.Position()] = c.Type
	}

	var b strings.Builder
	fmt.Fprintf(&b, "tick %d\n", frame.Tick)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x > 0 {
				b.WriteString(" ")
			}
			b.WriteString(r.glyph(board, frame, markers, known, x, y))
		}
		b.WriteString("\n")
	}
	for _, a := range frame.Agents {
		status := "alive"
		if !a.Alive {
			status = "destroyed"
		}
		fmt.Fprintf(&b, "%-8s %-13s (%d,%d) steps=%d cost=%.2f bombs=%d treasures=%d strength=%d %s\n",
			a.ID, a.Model, a.X, a.Y, a.Steps, a.Cost, a.BombsSurvived, a.Treasures, a.Strength, status)
	}
	if l := frame.Learner; l != nil {
		fmt.Fprintf(&b, "%-8s %-13s (%d,%d) steps=%d cost=%.2f target=(%d,%d) episode=%d done=%t\n",
			"learner", "qlearn", l.X, l.Y, l.Steps, l.Cost, l.TargetX, l.TargetY, l.Episode, l.Done)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) glyph(board Board, frame Frame, markers map[model.Position][]model.AgentState, known map[model.Position]model.CellType, x, y int) string {
	pos := model.Position{X: x, Y: y}
	if l := frame.Learner; l != nil {
		if l.X == x && l.Y == y {
			return r.au.Bold(r.au.Cyan(glyphLearner)).String()
		}
		if l.TargetX == x && l.TargetY == y {
			return r.au.Magenta(glyphTarget).String()
		}
	}
	if here := markers[pos]; len(here) > 0 {
		if len(here) > 1 {
			return r.au.Bold(r.au.Blue(glyphCrowd)).String()
		}
		if !here[0].Alive {
			return r.au.Faint(glyphDead).String()
		}
		return r.au.Bold(r.au.Green(glyphAgent)).String()
	}

	var t model.CellType
	if r.opts.RevealAll {
		cell, ok := board.CellAt(x, y)
		if !ok {
			return glyphUnknown
		}
		t = cell.Type
	} else {
		found, ok := known[pos]
		if !ok {
			return r.au.Faint(glyphUnknown).String()
		}
		t = found
	}

	switch t {
	case model.CellBomb:
		return r.au.Red(glyphBomb).String()
	case model.CellTreasure:
		return r.au.Yellow(glyphTreasure).String()
	default:
		return glyphFree
	}
}
