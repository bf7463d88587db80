package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/internal/model"
	"gridsim/internal/platform"
)

func writeConfig(t *testing.T, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_config.json")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadRunSettingsFromConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"grid_size":        6,
		"bombs":            4,
		"treasures":        2,
		"seed":             77,
		"online_training":  false,
		"enable_learner":   false,
		"max_ticks":        30,
		"train_on_grid":    true,
		"tick_interval_ms": 250,
		"agents": []any{
			"knn",
			map[string]any{"id": "net", "model": "network", "start": map[string]any{"x": 2, "y": 3}},
		},
		"models": map[string]any{
			"k":           5,
			"max_depth":   2,
			"memory_mode": "before_push",
			"activation":  "tanh",
		},
		"learner": map[string]any{
			"alpha":  0.3,
			"target": map[string]any{"x": 4, "y": 5},
		},
	})

	s, err := loadRunSettingsFromConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Sim.GridSize)
	assert.Equal(t, 4, s.Sim.Bombs)
	assert.Equal(t, 2, s.Sim.Treasures)
	assert.Equal(t, int64(77), s.Sim.Seed)
	assert.False(t, s.Sim.OnlineTraining)
	assert.False(t, s.Sim.EnableLearner)
	assert.Equal(t, 30, s.MaxTicks)
	assert.True(t, s.TrainOnGrid)
	assert.Equal(t, 250*time.Millisecond, s.TickInterval)

	require.Len(t, s.Sim.Agents, 2)
	assert.Equal(t, platform.AgentSpec{Model: "knn"}, s.Sim.Agents[0])
	assert.Equal(t, platform.AgentSpec{ID: "net", Model: "network", Start: model.Position{X: 2, Y: 3}}, s.Sim.Agents[1])

	assert.Equal(t, 5, s.Sim.Models.K)
	assert.Equal(t, 2, s.Sim.Models.MaxDepth)
	assert.Equal(t, "before_push", s.Sim.Models.MemoryMode)
	assert.Equal(t, "tanh", s.Sim.Models.Activation)

	assert.Equal(t, 0.3, s.Sim.Learner.Alpha)
	assert.Equal(t, platform.DefaultConfig().Learner.Gamma, s.Sim.Learner.Gamma)
	require.NotNil(t, s.Sim.Learner.Target)
	assert.Equal(t, model.Position{X: 4, Y: 5}, *s.Sim.Learner.Target)
}

func TestZeroDiscountReachesSimulation(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"grid_size": 4,
		"bombs":     1,
		"treasures": 1,
		"learner":   map[string]any{"gamma": 0},
	})
	s, err := loadRunSettingsFromConfig(path)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.Sim.Learner.Gamma)

	sim, err := platform.New(s.Sim, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim.Config().Learner.Gamma)
}

func TestLoadRunSettingsRejectsAgentWithoutModel(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"agents": []any{map[string]any{"id": "x"}},
	})
	_, err := loadRunSettingsFromConfig(path)
	require.Error(t, err)
}

func TestOverrideFromFlagsOnlyAppliesSetFlags(t *testing.T) {
	path := writeConfig(t, map[string]any{"grid_size": 6, "seed": 77})
	s, err := loadOrDefaultRunSettings(path)
	require.NoError(t, err)

	err = overrideFromFlags(&s, map[string]bool{"seed": true, "agents": true, "epsilon": true}, map[string]any{
		"grid-size": 10,
		"seed":      int64(5),
		"agents":    "knn, naive_bayes,",
		"epsilon":   0.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, s.Sim.GridSize)
	assert.Equal(t, int64(5), s.Sim.Seed)
	assert.Equal(t, []platform.AgentSpec{{Model: "knn"}, {Model: "naive_bayes"}}, s.Sim.Agents)
	assert.Equal(t, 0.0, s.Sim.Learner.Epsilon)

	err = overrideFromFlags(&s, map[string]bool{"agents": true}, map[string]any{"agents": " , "})
	require.Error(t, err)
}

func TestLoadOrDefaultRunSettingsWithoutConfig(t *testing.T) {
	s, err := loadOrDefaultRunSettings("")
	require.NoError(t, err)
	assert.Equal(t, defaultRunSettings(), s)

	_, err = loadOrDefaultRunSettings(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("GRIDSIM_ARTIFACTS_DIR=/tmp/from-file\nGRIDSIM_LOG_LEVEL=debug\n"), 0o644))

	t.Setenv(envLogLevel, "warn")
	t.Setenv(envArtifactsDir, "")
	require.NoError(t, os.Unsetenv(envArtifactsDir))
	t.Setenv(envStore, "")
	t.Setenv(envListenAddr, "")

	env := loadEnvironment(envFile)
	assert.Equal(t, "/tmp/from-file", env.ArtifactsDir)
	assert.Equal(t, "warn", env.LogLevel)
	assert.Equal(t, "memory", env.Store)
	assert.Equal(t, ":8080", env.ListenAddr)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	_, err = newLogger("loud", "text")
	require.Error(t, err)
	_, err = newLogger("info", "xml")
	require.Error(t, err)
}
