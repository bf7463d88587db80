package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/grid"
	"gridsim/internal/model"
)

func testBoard(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(3)
	require.NoError(t, err)
	require.NoError(t, g.Place(2, 0, model.CellBomb, model.BombCost))
	require.NoError(t, g.Place(0, 2, model.CellTreasure, model.TreasureCost))
	return g
}

func lines(t *testing.T, out string) []string {
	t.Helper()
	return strings.Split(strings.TrimRight(out, "\n"), "\n")
}

func TestDrawRevealAll(t *testing.T) {
	g := testBoard(t)
	var buf bytes.Buffer
	err := New(Options{RevealAll: true}).Draw(&buf, g, Frame{
		Tick:   4,
		Agents: []model.AgentState{{ID: "knn-1", Model: "knn", X: 1, Y: 1, Alive: true}},
	})
	require.NoError(t, err)

	got := lines(t, buf.String())
	require.Len(t, got, 5)
	assert.Equal(t, "tick 4", got[0])
	assert.Equal(t, ". . B", got[1])
	assert.Equal(t, ". A .", got[2])
	assert.Equal(t, "T . .", got[3])
	assert.Contains(t, got[4], "knn-1")
	assert.Contains(t, got[4], "alive")
}

func TestDrawHidesUndiscoveredCells(t *testing.T) {
	g := testBoard(t)
	g.RecordDiscovery(1, 0, model.CellFree)

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Draw(&buf, g, Frame{Tick: 1}))

	got := lines(t, buf.String())
	// Placement records its own discovery.
	assert.Equal(t, "? . B", got[1])
	assert.Equal(t, "? ? ?", got[2])
	assert.Equal(t, "T ? ?", got[3])
}

func TestDrawMarkers(t *testing.T) {
	g := testBoard(t)
	var buf bytes.Buffer
	err := New(Options{RevealAll: true}).Draw(&buf, g, Frame{
		Agents: []model.AgentState{
			{ID: "a", X: 0, Y: 0, Alive: true},
			{ID: "b", X: 0, Y: 0, Alive: true},
			{ID: "c", X: 1, Y: 0, Alive: false},
		},
		Learner: &model.LearnerState{X: 2, Y: 2, TargetX: 1, TargetY: 2},
	})
	require.NoError(t, err)

	got := lines(t, buf.String())
	assert.Equal(t, "* x B", got[1])
	assert.Equal(t, "T M Q", got[3])
	assert.Contains(t, got[len(got)-1], "learner")
	assert.Contains(t, got[len(got)-2], "destroyed")
}

func TestDrawWithColors(t *testing.T) {
	g := testBoard(t)
	var buf bytes.Buffer
	require.NoError(t, New(Options{Colors: true, RevealAll: true}).Draw(&buf, g, Frame{}))
	assert.Contains(t, buf.String(), "\x1b[")
}
