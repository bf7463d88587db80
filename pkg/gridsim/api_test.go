package gridsim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/model"
	"gridsim/internal/platform"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestClient(t *testing.T, artifactsDir string) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func smallConfig() platform.Config {
	cfg := platform.DefaultConfig()
	cfg.GridSize = 5
	cfg.Bombs = 3
	cfg.Treasures = 1
	cfg.Seed = 11
	return cfg
}

func TestRunPersistsAndLists(t *testing.T) {
	ctx := context.Background()
	artifacts := t.TempDir()
	client := newTestClient(t, artifacts)

	var ticks int
	summary, err := client.Run(ctx, RunRequest{
		Config:      smallConfig(),
		MaxTicks:    10,
		TrainOnGrid: true,
		OnTick:      func(*platform.Simulation, model.TickSummary) { ticks++ },
	})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	assert.LessOrEqual(t, summary.Ticks, 10)
	assert.Equal(t, summary.Ticks, ticks)
	assert.Len(t, summary.Final.Agents, 5)

	for _, file := range []string{"config.json", "ticks.csv", "qtable.json", "discoveries.json", "summary.json", "cost_chart.html"} {
		_, err := os.Stat(filepath.Join(summary.ArtifactsDir, file))
		require.NoError(t, err, file)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, 5, runs[0].GridSize)
	assert.Equal(t, int64(11), runs[0].Seed)

	detail, err := client.Show(ctx, ShowRequest{RunID: summary.RunID})
	require.NoError(t, err)
	require.NotNil(t, detail.Record)
	assert.Equal(t, summary.Ticks, detail.Record.Ticks)
	assert.Len(t, detail.History, summary.Ticks)
	assert.NotEmpty(t, detail.Discoveries)
}

func TestRunWithTrainingFile(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	summary, err := client.Run(context.Background(), RunRequest{
		Config:       smallConfig(),
		MaxTicks:     3,
		TrainingPath: filepath.Join("..", "..", "internal", "dataset", "testdata", "training.csv"),
	})
	require.NoError(t, err)
	for _, diag := range summary.Final.Models {
		assert.True(t, diag.Trained, diag.Name)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	cfg := smallConfig()
	cfg.Agents = []platform.AgentSpec{{Model: "perceptron"}}
	_, err := client.Run(context.Background(), RunRequest{Config: cfg})
	require.Error(t, err)
}

func TestShowFallsBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	artifacts := t.TempDir()

	first := newTestClient(t, artifacts)
	summary, err := first.Run(ctx, RunRequest{Config: smallConfig(), MaxTicks: 4})
	require.NoError(t, err)

	second := newTestClient(t, artifacts)
	detail, err := second.Show(ctx, ShowRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, detail.RunID)
	assert.Nil(t, detail.Record)
	assert.Equal(t, summary.Summary, detail.Summary)
	assert.NotEmpty(t, detail.QTable)

	_, err = second.Show(ctx, ShowRequest{RunID: "missing"})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeleteRemovesStoredRun(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())
	summary, err := client.Run(ctx, RunRequest{Config: smallConfig(), MaxTicks: 2})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, summary.RunID))
	detail, err := client.Show(ctx, ShowRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Nil(t, detail.Record)

	require.Error(t, client.Delete(ctx, ""))
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())
	summary, err := client.Run(ctx, RunRequest{Config: smallConfig(), MaxTicks: 2})
	require.NoError(t, err)

	out := t.TempDir()
	exported, err := client.Export(ctx, ExportRequest{Latest: true, OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, exported.RunID)
	assert.Equal(t, filepath.Join(out, summary.RunID), exported.Directory)
	_, err = os.Stat(filepath.Join(exported.Directory, "config.json"))
	require.NoError(t, err)
}

func TestRunSelectionErrors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())

	_, err := client.Export(ctx, ExportRequest{RunID: "a", Latest: true})
	require.Error(t, err)
	_, err = client.Export(ctx, ExportRequest{})
	require.Error(t, err)
	_, err = client.Show(ctx, ShowRequest{Latest: true})
	require.ErrorIs(t, err, ErrRunNotFound)
}
