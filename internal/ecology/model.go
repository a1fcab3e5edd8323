package ecology

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"ecosim/internal/grid"
)

var (
	ErrInvalidConfig    = errors.New("invalid model config")
	ErrCapacityExceeded = errors.New("initial population exceeds grid capacity")
	ErrGridSaturated    = grid.ErrSaturated
)

type Config struct {
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Prey      int    `json:"prey"`
	Predators int    `json:"predators"`
	Poachers  int    `json:"poachers"`
	Seed      int64  `json:"seed"`
	Params    Params `json:"params"`
}

func (c Config) Initial() Counts {
	return Counts{Prey: c.Prey, Predators: c.Predators, Poachers: c.Poachers}
}

func (c Config) Validate() error {
	if c.Height < 0 || c.Width < 0 {
		return fmt.Errorf("%w: grid %dx%d has a negative dimension", ErrInvalidConfig, c.Height, c.Width)
	}
	capacity := c.Height * c.Width
	initial := c.Initial()
	for _, s := range AllSpecies {
		n := initial.Of(s)
		if n < 0 {
			return fmt.Errorf("%w: %s count %d is negative", ErrInvalidConfig, s, n)
		}
		if n > capacity {
			return fmt.Errorf("%w: %d %s on a %dx%d grid (%d cells)", ErrCapacityExceeded, n, s, c.Height, c.Width, capacity)
		}
	}
	return nil
}

// Model owns the grid, the schedule and the registry of every agent created
// during the run. Removed agents stay in the registry so ids are never reused.
type Model struct {
	cfg    Config
	params Params
	rng    *rand.Rand

	grid     *grid.Grid
	schedule *Scheduler
	agents   map[grid.ID]*Agent
	nextID   grid.ID

	tick   int
	births int
	deaths int
}

func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		cfg:      cfg,
		params:   cfg.Params.Normalized(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		grid:     grid.New(cfg.Height, cfg.Width),
		schedule: NewScheduler(),
		agents:   make(map[grid.ID]*Agent),
	}

	initial := cfg.Initial()
	for _, s := range AllSpecies {
		for i := 0; i < initial.Of(s); i++ {
			a := m.spawn(s, grid.Position{}, m.params.initialEnergy(s))
			if _, err := m.scatter(a); err != nil {
				return nil, fmt.Errorf("seed %s %d: %w", s, a.ID, err)
			}
			m.schedule.Add(a.ID)
		}
	}
	return m, nil
}

// Step advances the model by one tick. Every agent active at the start of the
// tick acts once, in a fresh random order. A non-nil error wraps
// ErrGridSaturated: some offspring had no empty cell and had to share one. The
// tick still completed and the model stays usable.
func (m *Model) Step() error {
	err := m.schedule.Step(m.rng, m.activate)
	m.tick++
	return err
}

func (m *Model) activate(id grid.ID) error {
	a, ok := m.agents[id]
	if !ok || a.removed {
		return nil
	}
	step, ok := rules[a.Species]
	if !ok {
		return fmt.Errorf("no rule for %s", a.Species)
	}
	return step(m, a)
}

// PopulationCounts tallies the active set.
func (m *Model) PopulationCounts() Counts {
	var counts Counts
	for _, id := range m.schedule.Active() {
		counts.add(m.agents[id].Species, 1)
	}
	return counts
}

// CellOccupancy is one non-empty cell with the species of its occupants in
// arrival order.
type CellOccupancy struct {
	Pos     grid.Position `json:"pos"`
	Species []Species     `json:"species"`
}

// Occupancy lists non-empty cells in row-major order.
func (m *Model) Occupancy() []CellOccupancy {
	cells := m.grid.Occupied()
	out := make([]CellOccupancy, 0, len(cells))
	for _, cell := range cells {
		markers := make([]Species, 0, len(cell.IDs))
		for _, id := range cell.IDs {
			markers = append(markers, m.agents[id].Species)
		}
		out = append(out, CellOccupancy{Pos: cell.Pos, Species: markers})
	}
	return out
}

// Agents returns the live agents ordered by id.
func (m *Model) Agents() []AgentView {
	out := make([]AgentView, 0, m.schedule.Len())
	for _, id := range m.schedule.Active() {
		out = append(out, m.agents[id].view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Agent looks up any agent ever created, including removed ones.
func (m *Model) Agent(id grid.ID) (AgentView, bool) {
	a, ok := m.agents[id]
	if !ok {
		return AgentView{}, false
	}
	return a.view(), true
}

// Graze feeds a live prey PreyGrazeGain energy. The prey rule never calls it:
// prey energy only declines between breeds, and that behavior is kept on
// purpose because feeding would change the population dynamics.
func (m *Model) Graze(id grid.ID) bool {
	a, ok := m.agents[id]
	if !ok || a.removed || a.Species != Prey {
		return false
	}
	a.Energy += m.params.PreyGrazeGain
	return true
}

func (m *Model) Config() Config {
	return m.cfg
}

func (m *Model) Params() Params {
	return m.params
}

func (m *Model) Height() int {
	return m.grid.Height()
}

func (m *Model) Width() int {
	return m.grid.Width()
}

// Tick is the number of completed steps.
func (m *Model) Tick() int {
	return m.tick
}

// Births and Deaths count breeding and predation/poaching events since start.
func (m *Model) Births() int {
	return m.births
}

func (m *Model) Deaths() int {
	return m.deaths
}

// Registered is the number of agents ever created.
func (m *Model) Registered() int {
	return len(m.agents)
}

func (m *Model) spawn(s Species, at grid.Position, energy int) *Agent {
	m.nextID++
	a := &Agent{ID: m.nextID, Species: s, Energy: energy}
	a.pos = m.grid.Place(a.ID, at)
	m.agents[a.ID] = a
	return a
}

// scatter moves a freshly spawned agent to a random empty cell, falling back
// to a least occupied cell when none is empty. It reports whether the
// fallback was needed.
func (m *Model) scatter(a *Agent) (bool, error) {
	pos, err := m.grid.MoveToRandomEmpty(a.ID, m.rng, grid.EmptyOnly)
	saturated := errors.Is(err, grid.ErrSaturated)
	if saturated {
		pos, err = m.grid.MoveToRandomEmpty(a.ID, m.rng, grid.LeastOccupied)
	}
	if err != nil {
		return false, err
	}
	a.pos = pos
	return saturated, nil
}
