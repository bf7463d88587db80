package storage

import (
	"context"

	"gridsim/internal/model"
)

const DefaultStoreKind = "memory"

// Store persists simulation runs and the data recorded alongside them.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveTickHistory(ctx context.Context, runID string, history []model.TickSummary) error
	GetTickHistory(ctx context.Context, runID string) ([]model.TickSummary, bool, error)
	SaveQTable(ctx context.Context, runID string, table []model.QValue) error
	GetQTable(ctx context.Context, runID string) ([]model.QValue, bool, error)
	SaveDiscoveries(ctx context.Context, runID string, cells []model.Cell) error
	GetDiscoveries(ctx context.Context, runID string) ([]model.Cell, bool, error)
}

// Resetter is implemented by stores that can drop everything they hold.
type Resetter interface {
	Reset(ctx context.Context) error
}
