package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecosim/internal/ecology"
	"ecosim/internal/model"
	"ecosim/internal/storage"
)

type Config struct {
	Store storage.Store
	// Now stamps run records; nil means time.Now.
	Now func() time.Time
}

type StopReason string

const (
	StopReasonCompleted StopReason = "completed"
	StopReasonSaturated StopReason = "saturated"
	StopReasonStopped   StopReason = "stopped"
)

type Command string

const (
	CommandPause    Command = "pause"
	CommandContinue Command = "continue"
	CommandStop     Command = "stop"
)

type RunConfig struct {
	RunID     string
	Height    int
	Width     int
	Prey      int
	Predators int
	Poachers  int
	Ticks     int
	Seed      int64
	// StepDelay paces the run between ticks; zero runs flat out.
	StepDelay        time.Duration
	StopOnSaturation bool
	Params           ecology.Params
	Control          chan Command
}

func (c RunConfig) ModelConfig() ecology.Config {
	return ecology.Config{
		Height:    c.Height,
		Width:     c.Width,
		Prey:      c.Prey,
		Predators: c.Predators,
		Poachers:  c.Poachers,
		Seed:      c.Seed,
		Params:    c.Params,
	}
}

type RunResult struct {
	Record  model.RunRecord
	History []model.PopulationSample
}

// Observer sees the model after seeding (tick 0) and after every step. It runs
// on the run's goroutine and must not retain m.
type Observer func(tick int, m *ecology.Model)

type Runner struct {
	store storage.Store
	now   func() time.Time

	mu      sync.RWMutex
	started bool
	runs    map[string]chan Command
}

func NewRunner(cfg Config) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		store: cfg.Store,
		now:   now,
		runs:  make(map[string]chan Command),
	}
}

func (r *Runner) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

func (r *Runner) Started() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// NewRunID builds a unique run id that still shows the seed.
func NewRunID(seed int64) string {
	return fmt.Sprintf("run-%d-%s", seed, uuid.NewString()[:8])
}

// Run drives one model for cfg.Ticks steps and persists the result.
// Saturated steps are counted; they end the run only with StopOnSaturation.
// Cancellation returns the context error and persists nothing.
func (r *Runner) Run(ctx context.Context, cfg RunConfig, observers ...Observer) (RunResult, error) {
	if cfg.Ticks < 0 {
		return RunResult{}, fmt.Errorf("%w: ticks %d is negative", ecology.ErrInvalidConfig, cfg.Ticks)
	}
	if !r.Started() {
		return RunResult{}, fmt.Errorf("runner is not initialized")
	}

	m, err := ecology.New(cfg.ModelConfig())
	if err != nil {
		return RunResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID(cfg.Seed)
	}
	control := cfg.Control
	if control == nil {
		control = make(chan Command, 16)
	}
	if err := r.registerRunControl(runID, control); err != nil {
		return RunResult{}, err
	}
	defer r.unregisterRunControl(runID)

	history := make([]model.PopulationSample, 0, cfg.Ticks+1)
	history = append(history, sample(m))
	notify(observers, m)

	reason := StopReasonCompleted
	saturations := 0
	paused := false
	for m.Tick() < cfg.Ticks {
		cmd, err := awaitCommand(ctx, control, &paused)
		if err != nil {
			return RunResult{}, err
		}
		if cmd == CommandStop {
			reason = StopReasonStopped
			break
		}

		if err := m.Step(); err != nil {
			if !errors.Is(err, ecology.ErrGridSaturated) {
				return RunResult{}, fmt.Errorf("run %s tick %d: %w", runID, m.Tick(), err)
			}
			saturations++
			if cfg.StopOnSaturation {
				reason = StopReasonSaturated
			}
		}
		history = append(history, sample(m))
		notify(observers, m)
		if reason == StopReasonSaturated {
			break
		}

		if cfg.StepDelay > 0 && m.Tick() < cfg.Ticks {
			timer := time.NewTimer(cfg.StepDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RunResult{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	record := model.RunRecord{
		VersionedRecord:  storage.CurrentVersion(),
		ID:               runID,
		Height:           cfg.Height,
		Width:            cfg.Width,
		InitialPrey:      cfg.Prey,
		InitialPredators: cfg.Predators,
		InitialPoachers:  cfg.Poachers,
		Seed:             cfg.Seed,
		Ticks:            cfg.Ticks,
		TicksRun:         m.Tick(),
		StopReason:       string(reason),
		Saturations:      saturations,
		Births:           m.Births(),
		Deaths:           m.Deaths(),
		Final:            history[len(history)-1],
		CreatedAtUTC:     r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.SaveRun(ctx, record); err != nil {
		return RunResult{}, err
	}
	if err := r.store.SavePopulationHistory(ctx, runID, history); err != nil {
		return RunResult{}, err
	}
	return RunResult{Record: record, History: history}, nil
}

// awaitCommand drains pending control commands and blocks while paused.
func awaitCommand(ctx context.Context, control <-chan Command, paused *bool) (Command, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if *paused {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case cmd := <-control:
				if cmd == CommandStop {
					return cmd, nil
				}
				*paused = cmd == CommandPause
			}
			continue
		}
		select {
		case cmd := <-control:
			if cmd == CommandStop {
				return cmd, nil
			}
			*paused = cmd == CommandPause
		default:
			return "", nil
		}
	}
}

func (r *Runner) PauseRun(runID string) error {
	return r.sendRunCommand(runID, CommandPause)
}

func (r *Runner) ContinueRun(runID string) error {
	return r.sendRunCommand(runID, CommandContinue)
}

func (r *Runner) StopRun(runID string) error {
	return r.sendRunCommand(runID, CommandStop)
}

// ActiveRuns lists the ids of runs currently in progress.
func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) registerRunControl(runID string, control chan Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	r.runs[runID] = control
	return nil
}

func (r *Runner) unregisterRunControl(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

func (r *Runner) sendRunCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	r.mu.RLock()
	control, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func sample(m *ecology.Model) model.PopulationSample {
	counts := m.PopulationCounts()
	return model.PopulationSample{
		Tick:      m.Tick(),
		Prey:      counts.Prey,
		Predators: counts.Predators,
		Poachers:  counts.Poachers,
	}
}

func notify(observers []Observer, m *ecology.Model) {
	for _, observe := range observers {
		if observe != nil {
			observe(m.Tick(), m)
		}
	}
}
