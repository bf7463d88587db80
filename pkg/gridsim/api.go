// Package gridsim is the public entry point for running grid simulations,
// persisting their results and reading them back.
package gridsim

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gridsim/internal/dataset"
	"gridsim/internal/model"
	"gridsim/internal/platform"
	"gridsim/internal/stats"
	"gridsim/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "gridsim.db"
	defaultRunsLimit    = 20
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       logrus.FieldLogger
}

type Client struct {
	store storage.Store
	log   logrus.FieldLogger

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Config platform.Config
	// MaxTicks bounds the run; zero means platform.DefaultMaxTicks.
	MaxTicks int
	// TrainingPath is a delimited training file. Records is used when empty.
	TrainingPath string
	Records      []model.Record
	// TrainOnGrid trains on every cell of the generated grid when no other
	// training data is given.
	TrainOnGrid bool
	// OnTick is called after every tick of the run.
	OnTick func(sim *platform.Simulation, summary model.TickSummary)
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Ticks        int
	Done         bool
	Final        model.TickSummary
	Summary      stats.RunSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	GridSize     int
	Seed         int64
	Ticks        int
	Survivors    int
	MeanCost     float64
	LearnerDone  bool
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

// RunDetail is a stored run. Record, History and Discoveries are only set
// when the store still holds the run; Summary and QTable come from artifacts
// when it does not.
type RunDetail struct {
	RunID       string
	Record      *model.RunRecord
	History     []model.TickSummary
	QTable      []model.QValue
	Discoveries []model.Cell
	Summary     stats.RunSummary
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		log:          log,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// NewSimulation builds a trained simulation without running it.
func (c *Client) NewSimulation(ctx context.Context, cfg platform.Config, records []model.Record, trainOnGrid bool) (*platform.Simulation, error) {
	sim, err := platform.New(cfg, c.log)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 && trainOnGrid {
		records = dataset.FromCells(sim.Grid().Cells())
	}
	if len(records) > 0 {
		if err := sim.Train(ctx, records); err != nil {
			return nil, fmt.Errorf("train models: %w", err)
		}
	}
	return sim, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.store.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	records := req.Records
	if req.TrainingPath != "" {
		loaded, err := dataset.ReadFile(req.TrainingPath)
		if err != nil {
			return RunSummary{}, err
		}
		records = loaded
	}

	sim, err := c.NewSimulation(ctx, req.Config, records, req.TrainOnGrid)
	if err != nil {
		return RunSummary{}, err
	}

	var onTick func(model.TickSummary)
	if req.OnTick != nil {
		onTick = func(tick model.TickSummary) { req.OnTick(sim, tick) }
	}
	if _, err := sim.Run(ctx, req.MaxTicks, onTick); err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := uuid.NewString()
	cfg := sim.Config()
	history := sim.History()
	final := sim.Snapshot()
	qtable := sim.QTable()
	discoveries := sim.Discoveries()

	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		CreatedAtUTC:    now.Format(time.RFC3339Nano),
		Seed:            cfg.Seed,
		GridSize:        cfg.GridSize,
		Bombs:           cfg.Bombs,
		Treasures:       cfg.Treasures,
		Ticks:           final.Tick,
		Agents:          final.Agents,
		Learner:         final.Learner,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveTickHistory(ctx, runID, history); err != nil {
		return RunSummary{}, err
	}
	if qtable != nil {
		if err := c.store.SaveQTable(ctx, runID, qtable); err != nil {
			return RunSummary{}, err
		}
	}
	if err := c.store.SaveDiscoveries(ctx, runID, discoveries); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		RunID:       runID,
		Config:      cfg,
		History:     history,
		QTable:      qtable,
		Discoveries: discoveries,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := stats.Summarize(history)
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		GridSize:     cfg.GridSize,
		Seed:         cfg.Seed,
		Ticks:        final.Tick,
		Survivors:    summary.Survivors,
		MeanCost:     summary.MeanCost,
		LearnerDone:  summary.LearnerDone,
		CreatedAtUTC: record.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	c.log.WithFields(logrus.Fields{
		"run_id":    runID,
		"ticks":     final.Tick,
		"survivors": summary.Survivors,
	}).Info("run finished")

	return RunSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Ticks:        final.Tick,
		Done:         sim.Done(),
		Final:        final,
		Summary:      summary,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			GridSize:     e.GridSize,
			Seed:         e.Seed,
			Ticks:        e.Ticks,
			Survivors:    e.Survivors,
			MeanCost:     e.MeanCost,
			LearnerDone:  e.LearnerDone,
		})
	}
	return out, nil
}

func (c *Client) Show(ctx context.Context, req ShowRequest) (RunDetail, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "show")
	if err != nil {
		return RunDetail{}, err
	}
	if err := c.store.Init(ctx); err != nil {
		return RunDetail{}, err
	}

	detail := RunDetail{RunID: runID}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if ok {
		detail.Record = &record
		if detail.History, _, err = c.store.GetTickHistory(ctx, runID); err != nil {
			return RunDetail{}, err
		}
		if detail.QTable, _, err = c.store.GetQTable(ctx, runID); err != nil {
			return RunDetail{}, err
		}
		if detail.Discoveries, _, err = c.store.GetDiscoveries(ctx, runID); err != nil {
			return RunDetail{}, err
		}
		detail.Summary = stats.Summarize(detail.History)
		return detail, nil
	}

	summary, ok, err := stats.ReadRunSummary(c.artifactsDir, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	detail.Summary = summary
	if detail.QTable, _, err = stats.ReadQTable(c.artifactsDir, runID); err != nil {
		return RunDetail{}, err
	}
	return detail, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// Delete removes a run from the store. Artifacts on disk are left alone.
func (c *Client) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("delete requires run id")
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) resolveRunID(runID string, latest bool, op string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", fmt.Errorf("%s requires run id or latest", op)
	}
	if runID != "" {
		return runID, nil
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no runs available", ErrRunNotFound)
	}
	return entries[0].RunID, nil
}
