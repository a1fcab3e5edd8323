package ecosim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecosim/internal/ecology"
	"ecosim/internal/model"
	"ecosim/internal/platform"
	"ecosim/internal/server"
	"ecosim/internal/stats"
	"ecosim/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "ecosim.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
}

type Client struct {
	store  storage.Store
	runner *platform.Runner

	runsDir    string
	exportsDir string
}

type RunRequest struct {
	RunID            string
	Height           int
	Width            int
	Prey             int
	Predators        int
	Poachers         int
	Ticks            int
	Seed             int64
	StepDelay        time.Duration
	StopOnSaturation bool
	Params           ecology.Params
	// Progress, when set, receives the population after seeding and after
	// every tick.
	Progress func(model.PopulationSample)
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	TicksRun     int
	StopReason   string
	Saturations  int
	Births       int
	Deaths       int
	Final        model.PopulationSample
	History      []model.PopulationSample
	Species      []stats.SpeciesSummary
}

type SweepRequest struct {
	Base    RunRequest
	Seeds   []int64
	Workers int
}

type SweepResult struct {
	Path    string
	Summary stats.SweepSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Height       int
	Width        int
	Seed         int64
	Ticks        int
	TicksRun     int
	StopReason   string
	Final        model.PopulationSample
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
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

type ServeRequest struct {
	Addr         string
	Height       int
	Width        int
	Prey         int
	Predators    int
	Poachers     int
	Seed         int64
	Params       ecology.Params
	BaseInterval time.Duration
	StartPaused  bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureRunner(ctx)
	return err
}

// ErrRunNotFound is returned when no store, index or artifacts know a run id.
var ErrRunNotFound = errors.New("run not found")

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.RunID != "" {
		if err := stats.ValidateRunID(req.RunID); err != nil {
			return RunSummary{}, err
		}
	}
	runner, err := c.ensureRunner(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var observers []platform.Observer
	if req.Progress != nil {
		progress := req.Progress
		observers = append(observers, func(tick int, m *ecology.Model) {
			counts := m.PopulationCounts()
			progress(model.PopulationSample{Tick: tick, Prey: counts.Prey, Predators: counts.Predators, Poachers: counts.Poachers})
		})
	}

	result, err := runner.Run(ctx, runConfig(req), observers...)
	if err != nil {
		return RunSummary{}, err
	}
	runDir, err := c.writeArtifacts(req, result)
	if err != nil {
		return RunSummary{}, err
	}
	return summarize(result, runDir), nil
}

// Sweep repeats one configuration across seeds concurrently and writes
// artifacts for every run plus an aggregate summary.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepResult, error) {
	if len(req.Seeds) == 0 {
		return SweepResult{}, errors.New("sweep requires at least one seed")
	}
	runner, err := c.ensureRunner(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	configs := platform.SeedSweep(runConfig(req.Base), req.Seeds)
	results, err := runner.Sweep(ctx, configs, req.Workers)
	if err != nil {
		return SweepResult{}, err
	}

	runs := make([]stats.SweepRun, 0, len(results))
	for i, result := range results {
		runReq := req.Base
		runReq.Seed = req.Seeds[i]
		if _, err := c.writeArtifacts(runReq, result); err != nil {
			return SweepResult{}, err
		}
		runs = append(runs, stats.SweepRun{
			RunID:      result.Record.ID,
			Seed:       result.Record.Seed,
			TicksRun:   result.Record.TicksRun,
			StopReason: result.Record.StopReason,
			Final:      result.Record.Final,
		})
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("sweep-%s", now.Format("20060102T150405.000000000"))
	summary := stats.BuildSweepSummary(id, now.Format(time.RFC3339Nano), runs)
	path, err := stats.WriteSweepSummary(c.runsDir, summary)
	if err != nil {
		return SweepResult{}, err
	}
	return SweepResult{Path: path, Summary: summary}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
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
			Height:       e.Height,
			Width:        e.Width,
			Seed:         e.Seed,
			Ticks:        e.Ticks,
			TicksRun:     e.TicksRun,
			StopReason:   e.StopReason,
			Final:        e.Final,
		})
	}
	return out, nil
}

// History returns the per-tick population of a run, from the store when it
// has the run and from the run artifacts otherwise.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.PopulationSample, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "population history")
	if err != nil {
		return nil, err
	}

	if _, err := c.ensureRunner(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetPopulationHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadPopulationHistory(c.runsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no population history for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]model.PopulationSample(nil), history...), nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// DeleteRun removes a run from the store, the run index and the artifacts
// directory.
func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := stats.ValidateRunID(runID); err != nil {
		return err
	}
	if _, err := c.ensureRunner(ctx); err != nil {
		return err
	}
	_, inStore, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	onDisk, err := stats.RunArtifactsExist(c.runsDir, runID)
	if err != nil {
		return err
	}
	if !inStore && !onDisk {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err := c.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	if err := stats.RemoveRunIndex(c.runsDir, runID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(c.runsDir, runID))
}

// Serve runs the live view until ctx is done.
func (c *Client) Serve(ctx context.Context, req ServeRequest) error {
	b, err := server.NewBroadcaster(ecology.Config{
		Height:    req.Height,
		Width:     req.Width,
		Prey:      req.Prey,
		Predators: req.Predators,
		Poachers:  req.Poachers,
		Seed:      req.Seed,
		Params:    req.Params,
	}, server.Options{BaseInterval: req.BaseInterval, StartPaused: req.StartPaused})
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx, req.Addr, b)
}

func (c *Client) ensureRunner(ctx context.Context) (*platform.Runner, error) {
	if c.runner != nil {
		return c.runner, nil
	}
	r := platform.NewRunner(platform.Config{Store: c.store})
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	c.runner = r
	return c.runner, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		if err := stats.ValidateRunID(runID); err != nil {
			return "", err
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) writeArtifacts(req RunRequest, result platform.RunResult) (string, error) {
	rec := result.Record
	summary := stats.RunSummary{
		RunID:       rec.ID,
		TicksRun:    rec.TicksRun,
		StopReason:  rec.StopReason,
		Saturations: rec.Saturations,
		Births:      rec.Births,
		Deaths:      rec.Deaths,
		Final:       rec.Final,
		Species:     stats.SummarizeHistory(result.History),
	}
	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            rec.ID,
			Height:           rec.Height,
			Width:            rec.Width,
			Prey:             rec.InitialPrey,
			Predators:        rec.InitialPredators,
			Poachers:         rec.InitialPoachers,
			Ticks:            rec.Ticks,
			Seed:             rec.Seed,
			StepDelayMS:      req.StepDelay.Milliseconds(),
			StopOnSaturation: req.StopOnSaturation,
			Params:           req.Params.Normalized(),
		},
		History: result.History,
		Summary: summary,
	})
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        rec.ID,
		Height:       rec.Height,
		Width:        rec.Width,
		Seed:         rec.Seed,
		Ticks:        rec.Ticks,
		TicksRun:     rec.TicksRun,
		StopReason:   rec.StopReason,
		Final:        rec.Final,
		CreatedAtUTC: rec.CreatedAtUTC,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

func runConfig(req RunRequest) platform.RunConfig {
	return platform.RunConfig{
		RunID:            req.RunID,
		Height:           req.Height,
		Width:            req.Width,
		Prey:             req.Prey,
		Predators:        req.Predators,
		Poachers:         req.Poachers,
		Ticks:            req.Ticks,
		Seed:             req.Seed,
		StepDelay:        req.StepDelay,
		StopOnSaturation: req.StopOnSaturation,
		Params:           req.Params,
	}
}

func summarize(result platform.RunResult, runDir string) RunSummary {
	rec := result.Record
	return RunSummary{
		RunID:        rec.ID,
		ArtifactsDir: runDir,
		TicksRun:     rec.TicksRun,
		StopReason:   rec.StopReason,
		Saturations:  rec.Saturations,
		Births:       rec.Births,
		Deaths:       rec.Deaths,
		Final:        rec.Final,
		History:      result.History,
		Species:      stats.SummarizeHistory(result.History),
	}
}
