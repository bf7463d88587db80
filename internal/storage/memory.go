package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gridsim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]model.TickSummary
	qtables     map[string][]model.QValue
	discoveries map[string][]model.Cell
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.reset()
	return nil
}

func (s *MemoryStore) reset() {
	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]model.TickSummary)
	s.qtables = make(map[string][]model.QValue)
	s.discoveries = make(map[string][]model.Cell)
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *MemoryStore) checkInit() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInit(); err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	run.Agents = append([]model.AgentState(nil), run.Agents...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkInit(); err != nil {
		return model.RunRecord{}, false, err
	}

	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns runs oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkInit(); err != nil {
		return nil, err
	}

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInit(); err != nil {
		return err
	}

	delete(s.runs, id)
	delete(s.history, id)
	delete(s.qtables, id)
	delete(s.discoveries, id)
	return nil
}

func (s *MemoryStore) SaveTickHistory(_ context.Context, runID string, history []model.TickSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInit(); err != nil {
		return err
	}

	s.history[runID] = append([]model.TickSummary(nil), history...)
	return nil
}

func (s *MemoryStore) GetTickHistory(_ context.Context, runID string) ([]model.TickSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkInit(); err != nil {
		return nil, false, err
	}

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.TickSummary(nil), history...), true, nil
}

func (s *MemoryStore) SaveQTable(_ context.Context, runID string, table []model.QValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInit(); err != nil {
		return err
	}

	s.qtables[runID] = append([]model.QValue(nil), table...)
	return nil
}

func (s *MemoryStore) GetQTable(_ context.Context, runID string) ([]model.QValue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkInit(); err != nil {
		return nil, false, err
	}

	table, ok := s.qtables[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.QValue(nil), table...), true, nil
}

func (s *MemoryStore) SaveDiscoveries(_ context.Context, runID string, cells []model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInit(); err != nil {
		return err
	}

	s.discoveries[runID] = append([]model.Cell(nil), cells...)
	return nil
}

func (s *MemoryStore) GetDiscoveries(_ context.Context, runID string) ([]model.Cell, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkInit(); err != nil {
		return nil, false, err
	}

	cells, ok := s.discoveries[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.Cell(nil), cells...), true, nil
}
