package storage

import (
	"context"

	"ecosim/internal/model"
)

// Store persists run results: one record per run plus its per-tick population
// history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SavePopulationHistory(ctx context.Context, runID string, history []model.PopulationSample) error
	GetPopulationHistory(ctx context.Context, runID string) ([]model.PopulationSample, bool, error)
}
