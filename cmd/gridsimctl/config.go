package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
	"gridsim/internal/platform"
	"gridsim/internal/storage"
)

const (
	envStore        = "GRIDSIM_STORE"
	envDBPath       = "GRIDSIM_DB_PATH"
	envLogLevel     = "GRIDSIM_LOG_LEVEL"
	envLogFormat    = "GRIDSIM_LOG_FORMAT"
	envArtifactsDir = "GRIDSIM_ARTIFACTS_DIR"
	envListenAddr   = "GRIDSIM_LISTEN_ADDR"
)

// environment holds the process-wide defaults. Flags override them.
type environment struct {
	Store        string
	DBPath       string
	LogLevel     string
	LogFormat    string
	ArtifactsDir string
	ListenAddr   string
}

// loadEnvironment reads optional dotenv files into the process environment
// without overriding variables that are already set.
func loadEnvironment(files ...string) environment {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logrus.WithError(err).WithField("file", file).Warn("ignoring unreadable env file")
		}
	}
	return environment{
		Store:        envOr(envStore, storage.DefaultStoreKind),
		DBPath:       envOr(envDBPath, "gridsim.db"),
		LogLevel:     envOr(envLogLevel, "info"),
		LogFormat:    envOr(envLogFormat, "text"),
		ArtifactsDir: envOr(envArtifactsDir, "runs"),
		ListenAddr:   envOr(envListenAddr, ":8080"),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(parsed)
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return log, nil
}

// runSettings is everything a run or serve command needs beyond storage.
type runSettings struct {
	Sim          platform.Config
	MaxTicks     int
	TrainingPath string
	TrainOnGrid  bool
	TickInterval time.Duration
}

func defaultRunSettings() runSettings {
	return runSettings{
		Sim:          platform.DefaultConfig(),
		MaxTicks:     platform.DefaultMaxTicks,
		TickInterval: platform.DefaultTickInterval,
	}
}

func loadRunSettingsFromConfig(path string) (runSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runSettings{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return runSettings{}, err
	}

	s := defaultRunSettings()
	if v, ok := asInt(raw["grid_size"]); ok {
		s.Sim.GridSize = v
	}
	if v, ok := asInt(raw["bombs"]); ok {
		s.Sim.Bombs = v
	}
	if v, ok := asInt(raw["treasures"]); ok {
		s.Sim.Treasures = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		s.Sim.Seed = v
	}
	if v, ok := asBool(raw["online_training"]); ok {
		s.Sim.OnlineTraining = v
	}
	if v, ok := asBool(raw["enable_learner"]); ok {
		s.Sim.EnableLearner = v
	}
	if v, ok := asInt(raw["max_ticks"]); ok {
		s.MaxTicks = v
	}
	if v, ok := asString(raw["training_path"]); ok {
		s.TrainingPath = v
	}
	if v, ok := asBool(raw["train_on_grid"]); ok {
		s.TrainOnGrid = v
	}
	if v, ok := asInt(raw["tick_interval_ms"]); ok {
		s.TickInterval = time.Duration(v) * time.Millisecond
	}

	if agents, ok := raw["agents"].([]any); ok {
		specs := make([]platform.AgentSpec, 0, len(agents))
		for i, item := range agents {
			spec, err := agentSpecFromMap(item)
			if err != nil {
				return runSettings{}, fmt.Errorf("agents[%d]: %w", i, err)
			}
			specs = append(specs, spec)
		}
		s.Sim.Agents = specs
	}

	if models, ok := raw["models"].(map[string]any); ok {
		if v, ok := asInt(models["k"]); ok {
			s.Sim.Models.K = v
		}
		if v, ok := asInt(models["max_depth"]); ok {
			s.Sim.Models.MaxDepth = v
		}
		if v, ok := asInt(models["hidden_size"]); ok {
			s.Sim.Models.HiddenSize = v
		}
		if v, ok := asInt(models["memory_size"]); ok {
			s.Sim.Models.MemorySize = v
		}
		if v, ok := asFloat64(models["learning_rate"]); ok {
			s.Sim.Models.LearningRate = v
		}
		if v, ok := asString(models["memory_mode"]); ok {
			s.Sim.Models.MemoryMode = v
		}
		if v, ok := asString(models["activation"]); ok {
			s.Sim.Models.Activation = v
		}
	}

	if learner, ok := raw["learner"].(map[string]any); ok {
		if v, ok := asFloat64(learner["alpha"]); ok {
			s.Sim.Learner.Alpha = v
		}
		if v, ok := asFloat64(learner["gamma"]); ok {
			s.Sim.Learner.Gamma = v
		}
		if v, ok := asFloat64(learner["epsilon"]); ok {
			s.Sim.Learner.Epsilon = v
		}
		if v, ok := asFloat64(learner["revisit_penalty"]); ok {
			s.Sim.Learner.RevisitPenalty = v
		}
		if v, ok := asPosition(learner["start"]); ok {
			s.Sim.Learner.Start = v
		}
		if v, ok := asPosition(learner["target"]); ok {
			target := v
			s.Sim.Learner.Target = &target
		}
	}
	return s, nil
}

func agentSpecFromMap(v any) (platform.AgentSpec, error) {
	switch x := v.(type) {
	case string:
		return platform.AgentSpec{Model: x}, nil
	case map[string]any:
		var spec platform.AgentSpec
		if id, ok := asString(x["id"]); ok {
			spec.ID = id
		}
		kind, ok := asString(x["model"])
		if !ok || kind == "" {
			return platform.AgentSpec{}, fmt.Errorf("model is required")
		}
		spec.Model = kind
		if start, ok := asPosition(x["start"]); ok {
			spec.Start = start
		}
		return spec, nil
	default:
		return platform.AgentSpec{}, fmt.Errorf("unsupported agent entry %T", v)
	}
}

func asPosition(v any) (model.Position, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return model.Position{}, false
	}
	x, okX := asInt(m["x"])
	y, okY := asInt(m["y"])
	if !okX || !okY {
		return model.Position{}, false
	}
	return model.Position{X: x, Y: y}, true
}

// parseAgentList turns "knn,knn,naive_bayes" into agent specs with generated ids.
func parseAgentList(list string) []platform.AgentSpec {
	var specs []platform.AgentSpec
	for _, part := range strings.Split(list, ",") {
		kind := strings.TrimSpace(part)
		if kind == "" {
			continue
		}
		specs = append(specs, platform.AgentSpec{Model: kind})
	}
	return specs
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies only the flags the user set explicitly, so a
// config file value survives an untouched flag default.
func overrideFromFlags(s *runSettings, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "grid-size":
			s.Sim.GridSize = v.(int)
		case "bombs":
			s.Sim.Bombs = v.(int)
		case "treasures":
			s.Sim.Treasures = v.(int)
		case "seed":
			s.Sim.Seed = v.(int64)
		case "online":
			s.Sim.OnlineTraining = v.(bool)
		case "learner":
			s.Sim.EnableLearner = v.(bool)
		case "agents":
			specs := parseAgentList(v.(string))
			if len(specs) == 0 {
				return fmt.Errorf("agents flag lists no models")
			}
			s.Sim.Agents = specs
		case "max-ticks":
			s.MaxTicks = v.(int)
		case "train":
			s.TrainingPath = v.(string)
		case "train-on-grid":
			s.TrainOnGrid = v.(bool)
		case "interval-ms":
			s.TickInterval = time.Duration(v.(int)) * time.Millisecond
		case "k":
			s.Sim.Models.K = v.(int)
		case "max-depth":
			s.Sim.Models.MaxDepth = v.(int)
		case "hidden":
			s.Sim.Models.HiddenSize = v.(int)
		case "memory":
			s.Sim.Models.MemorySize = v.(int)
		case "lr":
			s.Sim.Models.LearningRate = v.(float64)
		case "memory-mode":
			s.Sim.Models.MemoryMode = v.(string)
		case "activation":
			s.Sim.Models.Activation = v.(string)
		case "alpha":
			s.Sim.Learner.Alpha = v.(float64)
		case "gamma":
			s.Sim.Learner.Gamma = v.(float64)
		case "epsilon":
			s.Sim.Learner.Epsilon = v.(float64)
		case "revisit-penalty":
			s.Sim.Learner.RevisitPenalty = v.(float64)
		}
	}
	return nil
}

func loadOrDefaultRunSettings(configPath string) (runSettings, error) {
	if configPath == "" {
		return defaultRunSettings(), nil
	}
	s, err := loadRunSettingsFromConfig(configPath)
	if err != nil {
		return runSettings{}, fmt.Errorf("load config: %w", err)
	}
	return s, nil
}
