package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gridsim/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	configFile         = "config.json"
	ticksFile          = "ticks.csv"
	qtableFile         = "qtable.json"
	discoveriesFile    = "discoveries.json"
	summaryFile        = "summary.json"
	costChartFile      = "cost_chart.html"
	learnerSeriesLabel = "learner"
)

// RunArtifacts is everything written under one run directory. Config is
// written verbatim to config.json.
type RunArtifacts struct {
	RunID       string              `json:"run_id"`
	Config      any                 `json:"config"`
	History     []model.TickSummary `json:"history"`
	QTable      []model.QValue      `json:"qtable,omitempty"`
	Discoveries []model.Cell        `json:"discoveries,omitempty"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	GridSize     int     `json:"grid_size"`
	Seed         int64   `json:"seed"`
	Ticks        int     `json:"ticks"`
	Survivors    int     `json:"survivors"`
	MeanCost     float64 `json:"mean_cost"`
	LearnerDone  bool    `json:"learner_done"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if strings.TrimSpace(artifacts.RunID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := WriteTickSeries(runDir, artifacts.History); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, qtableFile), nonNilQValues(artifacts.QTable)); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, discoveriesFile), nonNilCells(artifacts.Discoveries)); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), Summarize(artifacts.History)); err != nil {
		return "", err
	}
	if err := writeCostChartFile(filepath.Join(runDir, costChartFile), artifacts.RunID, artifacts.History); err != nil {
		return "", err
	}
	return runDir, nil
}

func nonNilQValues(values []model.QValue) []model.QValue {
	if values == nil {
		return []model.QValue{}
	}
	return values
}

func nonNilCells(cells []model.Cell) []model.Cell {
	if cells == nil {
		return []model.Cell{}
	}
	return cells
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's known files to outDir/runID.
// Files that were never written are skipped.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	if err := copyFile(filepath.Join(src, configFile), filepath.Join(dst, configFile)); err != nil {
		return "", err
	}
	for _, file := range []string{ticksFile, qtableFile, discoveriesFile, summaryFile, costChartFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// ReadRunConfig decodes config.json into dst.
func ReadRunConfig(baseDir, runID string, dst any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func ReadQTable(baseDir, runID string) ([]model.QValue, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, qtableFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var table []model.QValue
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, false, err
	}
	return table, true, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}

	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

var tickSeriesHeader = []string{"tick", "agent", "model", "x", "y", "steps", "cost", "bombs", "treasures", "strength", "alive"}

// WriteTickSeries writes one row per agent per tick, plus a learner row when
// the tick carries one.
func WriteTickSeries(runDir string, history []model.TickSummary) error {
	file, err := os.Create(filepath.Join(runDir, ticksFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(tickSeriesHeader); err != nil {
		return err
	}
	for _, summary := range history {
		tick := strconv.Itoa(summary.Tick)
		for _, a := range summary.Agents {
			if err := writer.Write([]string{
				tick,
				a.ID,
				a.Model,
				strconv.Itoa(a.X),
				strconv.Itoa(a.Y),
				strconv.Itoa(a.Steps),
				strconv.FormatFloat(a.Cost, 'f', -1, 64),
				strconv.Itoa(a.BombsSurvived),
				strconv.Itoa(a.Treasures),
				strconv.Itoa(a.Strength),
				strconv.FormatBool(a.Alive),
			}); err != nil {
				return err
			}
		}
		if l := summary.Learner; l != nil {
			if err := writer.Write([]string{
				tick,
				learnerSeriesLabel,
				"qlearn",
				strconv.Itoa(l.X),
				strconv.Itoa(l.Y),
				strconv.Itoa(l.Steps),
				strconv.FormatFloat(l.Cost, 'f', -1, 64),
				strconv.Itoa(l.Bombs),
				strconv.Itoa(l.Treasures),
				"0",
				strconv.FormatBool(!l.Done),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCostSeries reads ticks.csv back into accumulated cost per agent, keyed
// by agent id, in tick order.
func ReadCostSeries(baseDir, runID string) (map[string][]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, ticksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return map[string][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < len(tickSeriesHeader) {
		return nil, false, fmt.Errorf("tick series header must have %d columns", len(tickSeriesHeader))
	}

	series := make(map[string][]float64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < len(tickSeriesHeader) {
			return nil, false, fmt.Errorf("tick series row must have %d columns", len(tickSeriesHeader))
		}
		cost, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			return nil, false, err
		}
		series[record[1]] = append(series[record[1]], cost)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
