package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"gridsim/internal/dataset"
	"gridsim/internal/model"
	"gridsim/internal/platform"
	"gridsim/internal/render"
	"gridsim/internal/server"
	gridapi "gridsim/pkg/gridsim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}
	env := loadEnvironment()

	switch args[0] {
	case "run":
		return runRun(ctx, env, args[1:], out)
	case "runs":
		return runRuns(ctx, env, args[1:], out)
	case "show":
		return runShow(ctx, env, args[1:], out)
	case "export":
		return runExport(ctx, env, args[1:], out)
	case "delete":
		return runDelete(ctx, env, args[1:], out)
	case "serve":
		return runServe(ctx, env, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gridsimctl <run|runs|show|export|delete|serve> [flags]", msg)
}

// commonFlags are the storage and logging flags every command shares.
type commonFlags struct {
	store        *string
	dbPath       *string
	artifactsDir *string
	logLevel     *string
	logFormat    *string
}

func registerCommonFlags(fs *flag.FlagSet, env environment) commonFlags {
	return commonFlags{
		store:        fs.String("store", env.Store, "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", env.DBPath, "sqlite database path"),
		artifactsDir: fs.String("artifacts", env.ArtifactsDir, "run artifacts directory"),
		logLevel:     fs.String("log-level", env.LogLevel, "log level: debug|info|warn|error"),
		logFormat:    fs.String("log-format", env.LogFormat, "log format: text|json"),
	}
}

func (c commonFlags) client() (*gridapi.Client, *logrus.Logger, error) {
	log, err := newLogger(*c.logLevel, *c.logFormat)
	if err != nil {
		return nil, nil, err
	}
	client, err := gridapi.New(gridapi.Options{
		StoreKind:    *c.store,
		DBPath:       *c.dbPath,
		ArtifactsDir: *c.artifactsDir,
		Logger:       log,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, log, nil
}

// registerSimFlags registers the simulation flags and returns the value lookup used
// by overrideFromFlags.
func registerSimFlags(fs *flag.FlagSet) func() map[string]any {
	defaults := defaultRunSettings()
	gridSize := fs.Int("grid-size", defaults.Sim.GridSize, "grid side length")
	bombs := fs.Int("bombs", defaults.Sim.Bombs, "bomb count")
	treasures := fs.Int("treasures", defaults.Sim.Treasures, "treasure count")
	seed := fs.Int64("seed", defaults.Sim.Seed, "rng seed")
	online := fs.Bool("online", defaults.Sim.OnlineTraining, "train online learners after each autonomous move")
	learner := fs.Bool("learner", defaults.Sim.EnableLearner, "run the tabular learner alongside the agents")
	agents := fs.String("agents", "knn,knn,knn,naive_bayes,decision_tree", "comma-separated model kinds, one agent each")
	maxTicks := fs.Int("max-ticks", defaults.MaxTicks, "tick limit")
	train := fs.String("train", "", "training data file (x,y,type,cost)")
	trainOnGrid := fs.Bool("train-on-grid", false, "train on the generated grid when no training file is given")
	interval := fs.Int("interval-ms", int(defaults.TickInterval.Milliseconds()), "tick interval for serve")
	k := fs.Int("k", 0, "nearest-neighbor vote size (0 uses default)")
	maxDepth := fs.Int("max-depth", 0, "decision tree depth bound (0 uses default)")
	hidden := fs.Int("hidden", 0, "network hidden size (0 uses default)")
	memory := fs.Int("memory", 0, "network memory size (0 uses default)")
	lr := fs.Float64("lr", 0, "network learning rate (0 uses default)")
	memoryMode := fs.String("memory-mode", "", "network memory mode: after_push|before_push")
	activation := fs.String("activation", "", "network activation: sigmoid|tanh|identity")
	alpha := fs.Float64("alpha", defaults.Sim.Learner.Alpha, "learner step size")
	gamma := fs.Float64("gamma", defaults.Sim.Learner.Gamma, "learner discount")
	epsilon := fs.Float64("epsilon", defaults.Sim.Learner.Epsilon, "learner exploration rate")
	revisit := fs.Float64("revisit-penalty", defaults.Sim.Learner.RevisitPenalty, "learner revisit penalty")

	return func() map[string]any {
		return map[string]any{
			"grid-size":       *gridSize,
			"bombs":           *bombs,
			"treasures":       *treasures,
			"seed":            *seed,
			"online":          *online,
			"learner":         *learner,
			"agents":          *agents,
			"max-ticks":       *maxTicks,
			"train":           *train,
			"train-on-grid":   *trainOnGrid,
			"interval-ms":     *interval,
			"k":               *k,
			"max-depth":       *maxDepth,
			"hidden":          *hidden,
			"memory":          *memory,
			"lr":              *lr,
			"memory-mode":     *memoryMode,
			"activation":      *activation,
			"alpha":           *alpha,
			"gamma":           *gamma,
			"epsilon":         *epsilon,
			"revisit-penalty": *revisit,
		}
	}
}

func parseRunSettings(fs *flag.FlagSet, args []string, configPath *string, values func() map[string]any) (runSettings, error) {
	if err := fs.Parse(args); err != nil {
		return runSettings{}, err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	settings, err := loadOrDefaultRunSettings(*configPath)
	if err != nil {
		return runSettings{}, err
	}
	if err := overrideFromFlags(&settings, setFlags, values()); err != nil {
		return runSettings{}, err
	}
	return settings, nil
}

func runRun(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	common := registerCommonFlags(fs, env)
	values := registerSimFlags(fs)
	board := fs.Bool("board", false, "draw the board after every tick")
	colors := fs.Bool("colors", true, "color the board output")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	settings, err := parseRunSettings(fs, args, configPath, values)
	if err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := gridapi.RunRequest{
		Config:       settings.Sim,
		MaxTicks:     settings.MaxTicks,
		TrainingPath: settings.TrainingPath,
		TrainOnGrid:  settings.TrainOnGrid,
	}
	if *board {
		r := render.New(render.Options{Colors: *colors})
		req.OnTick = func(sim *platform.Simulation, summary model.TickSummary) {
			_ = r.Draw(out, sim.Grid(), render.Frame{Tick: summary.Tick, Agents: summary.Agents, Learner: summary.Learner})
		}
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		return writeJSON(out, summary)
	}
	fmt.Fprintf(out, "run completed run_id=%s ticks=%d done=%t survivors=%d/%d mean_cost=%.3f artifacts=%s\n",
		summary.RunID, summary.Ticks, summary.Done, summary.Summary.Survivors, summary.Summary.Agents, summary.Summary.MeanCost, summary.ArtifactsDir)
	for _, a := range summary.Final.Agents {
		fmt.Fprintf(out, "agent=%s model=%s pos=(%d,%d) steps=%d cost=%.2f bombs=%d treasures=%d alive=%t\n",
			a.ID, a.Model, a.X, a.Y, a.Steps, a.Cost, a.BombsSurvived, a.Treasures, a.Alive)
	}
	if l := summary.Final.Learner; l != nil {
		fmt.Fprintf(out, "learner pos=(%d,%d) target=(%d,%d) steps=%d cost=%.2f done=%t\n",
			l.X, l.Y, l.TargetX, l.TargetY, l.Steps, l.Cost, l.Done)
	}
	for _, d := range summary.Final.Models {
		if d.UntrainedPredictions > 0 {
			fmt.Fprintf(out, "model=%s untrained_predictions=%d\n", d.Name, d.UntrainedPredictions)
		}
	}
	return nil
}

func runRuns(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := registerCommonFlags(fs, env)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, gridapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(out, "run_id=%s created_at=%s grid=%d seed=%d ticks=%d survivors=%d mean_cost=%.3f learner_done=%t\n",
			item.RunID, item.CreatedAtUTC, item.GridSize, item.Seed, item.Ticks, item.Survivors, item.MeanCost, item.LearnerDone)
	}
	return nil
}

func runShow(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := registerCommonFlags(fs, env)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	jsonOut := fs.Bool("json", false, "emit run detail as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.Show(ctx, gridapi.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, detail)
	}

	s := detail.Summary
	fmt.Fprintf(out, "run_id=%s ticks=%d survivors=%d/%d mean_cost=%.3f max_cost=%.3f treasures=%d bombs_survived=%d\n",
		detail.RunID, s.Ticks, s.Survivors, s.Agents, s.MeanCost, s.MaxCost, s.Treasures, s.BombsSurvived)
	fmt.Fprintf(out, "learner done=%t steps=%d episode=%d qtable_entries=%d\n",
		s.LearnerDone, s.LearnerSteps, s.LearnerEpisode, len(detail.QTable))
	if detail.Record != nil {
		fmt.Fprintf(out, "stored grid=%d bombs=%d treasures=%d seed=%d discoveries=%d\n",
			detail.Record.GridSize, detail.Record.Bombs, detail.Record.Treasures, detail.Record.Seed, len(detail.Discoveries))
	}
	return nil
}

func runExport(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := registerCommonFlags(fs, env)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "exports", "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, gridapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	common := registerCommonFlags(fs, env)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted run_id=%s\n", *runID)
	return nil
}

func runServe(ctx context.Context, env environment, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	common := registerCommonFlags(fs, env)
	values := registerSimFlags(fs)
	addr := fs.String("addr", env.ListenAddr, "listen address")
	autostart := fs.Bool("autostart", false, "start ticking immediately")
	settings, err := parseRunSettings(fs, args, configPath, values)
	if err != nil {
		return err
	}

	client, log, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var records []model.Record
	if settings.TrainingPath != "" {
		records, err = dataset.ReadFile(settings.TrainingPath)
		if err != nil {
			return err
		}
	}
	sim, err := client.NewSimulation(ctx, settings.Sim, records, settings.TrainOnGrid)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{Addr: *addr, TickInterval: settings.TickInterval}, sim, log)
	if *autostart {
		if err := srv.Driver().Start(); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "serving addr=%s interval=%s\n", *addr, settings.TickInterval)
	return srv.Run(ctx)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
