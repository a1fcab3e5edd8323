package ecology

import (
	"errors"
	"reflect"
	"testing"

	"ecosim/internal/grid"
)

func newEmptyModel(t *testing.T, height, width int, seed int64) *Model {
	t.Helper()
	m, err := New(Config{Height: height, Width: width, Seed: seed})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func addAgent(m *Model, s Species, at grid.Position, energy int) *Agent {
	a := m.spawn(s, at, energy)
	m.schedule.Add(a.ID)
	return a
}

func TestNewValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "negative height", cfg: Config{Height: -1, Width: 3}, want: ErrInvalidConfig},
		{name: "negative width", cfg: Config{Height: 3, Width: -2}, want: ErrInvalidConfig},
		{name: "negative prey", cfg: Config{Height: 3, Width: 3, Prey: -1}, want: ErrInvalidConfig},
		{name: "prey over capacity", cfg: Config{Height: 2, Width: 2, Prey: 5}, want: ErrCapacityExceeded},
		{name: "predators over capacity", cfg: Config{Height: 2, Width: 2, Predators: 5}, want: ErrCapacityExceeded},
		{name: "poachers over capacity", cfg: Config{Height: 0, Width: 4, Poachers: 1}, want: ErrCapacityExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.cfg)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if m != nil {
				t.Fatal("expected no model on error")
			}
		})
	}
}

func TestNewSeedsInitialPopulation(t *testing.T) {
	m, err := New(Config{Height: 10, Width: 10, Prey: 20, Predators: 7, Poachers: 3, Seed: 7})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}

	want := Counts{Prey: 20, Predators: 7, Poachers: 3}
	if got := m.PopulationCounts(); got != want {
		t.Fatalf("counts: got %+v want %+v", got, want)
	}

	agents := m.Agents()
	if len(agents) != 30 {
		t.Fatalf("expected 30 agents, got %d", len(agents))
	}
	for i, a := range agents {
		if a.ID != grid.ID(i+1) {
			t.Fatalf("expected sequential ids, agent %d has id %d", i, a.ID)
		}
		switch {
		case a.ID <= 20 && (a.Species != Prey || a.Energy != 100):
			t.Fatalf("agent %d: expected prey with 100 energy, got %s %d", a.ID, a.Species, a.Energy)
		case a.ID > 20 && a.ID <= 27 && (a.Species != Predator || a.Energy != 100):
			t.Fatalf("agent %d: expected predator with 100 energy, got %s %d", a.ID, a.Species, a.Energy)
		case a.ID > 27 && (a.Species != Poacher || a.Energy != 50):
			t.Fatalf("agent %d: expected poacher with 50 energy, got %s %d", a.ID, a.Species, a.Energy)
		}
	}

	cells := m.Occupancy()
	if len(cells) != 30 {
		t.Fatalf("expected every agent on its own cell, got %d cells", len(cells))
	}
	for _, cell := range cells {
		if len(cell.Species) != 1 {
			t.Fatalf("cell %v holds %d agents", cell.Pos, len(cell.Species))
		}
	}
	assertConsistent(t, m)
}

func TestNewCombinedOverflowSharesCells(t *testing.T) {
	m, err := New(Config{Height: 2, Width: 2, Prey: 4, Predators: 4, Seed: 3})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	cells := m.Occupancy()
	if len(cells) != 4 {
		t.Fatalf("expected 4 occupied cells, got %d", len(cells))
	}
	for _, cell := range cells {
		if len(cell.Species) != 2 {
			t.Fatalf("cell %v holds %d agents, want 2", cell.Pos, len(cell.Species))
		}
	}
	assertConsistent(t, m)
}

func TestStepWithNoAgentsIsNoop(t *testing.T) {
	for _, dims := range [][2]int{{10, 10}, {0, 0}, {1, 1}} {
		m := newEmptyModel(t, dims[0], dims[1], 1)
		for i := 0; i < 5; i++ {
			if err := m.Step(); err != nil {
				t.Fatalf("%dx%d step %d: %v", dims[0], dims[1], i, err)
			}
			if got := m.PopulationCounts(); got != (Counts{}) {
				t.Fatalf("expected empty counts, got %+v", got)
			}
		}
		if m.Tick() != 5 {
			t.Fatalf("expected tick 5, got %d", m.Tick())
		}
		if len(m.Occupancy()) != 0 {
			t.Fatal("expected empty occupancy")
		}
	}
}

func TestSingleCellTorusPreyStaysPut(t *testing.T) {
	m, err := New(Config{Height: 1, Width: 1, Prey: 1, Seed: 9})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		a, _ := m.Agent(1)
		if a.Position != (grid.Position{}) {
			t.Fatalf("prey left the only cell: %v", a.Position)
		}
	}
	a, _ := m.Agent(1)
	if a.Energy != 97 {
		t.Fatalf("expected prey energy 97 after 3 ticks, got %d", a.Energy)
	}
}

func TestSingleCellTorusBreedingSharesCell(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 4)
	parent := addAgent(m, Prey, grid.Position{}, 200)

	err := m.Step()
	if !errors.Is(err, ErrGridSaturated) {
		t.Fatalf("expected saturation signal, got %v", err)
	}
	if got := m.PopulationCounts(); got.Prey != 2 {
		t.Fatalf("expected 2 prey, got %+v", got)
	}
	if parent.Energy != 99 {
		t.Fatalf("expected parent energy 99, got %d", parent.Energy)
	}
	child, ok := m.Agent(2)
	if !ok || child.Energy != 100 || child.Species != Prey {
		t.Fatalf("unexpected child: %+v", child)
	}
	if occ := m.grid.Occupants(grid.Position{}); len(occ) != 2 {
		t.Fatalf("expected two co-occupants, got %v", occ)
	}

	if err := m.Step(); err != nil {
		t.Fatalf("second step: %v", err)
	}
	child, _ = m.Agent(2)
	if parent.Energy != 98 || child.Energy != 99 {
		t.Fatalf("unexpected energies parent=%d child=%d", parent.Energy, child.Energy)
	}
	assertConsistent(t, m)
}

func TestPreyBreedingIsAtomicAndDeferred(t *testing.T) {
	m := newEmptyModel(t, 3, 3, 11)
	parent := addAgent(m, Prey, grid.Position{Row: 1, Col: 1}, 200)

	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if parent.Energy != 99 {
		t.Fatalf("expected parent energy 200-100-1=99, got %d", parent.Energy)
	}
	agents := m.Agents()
	if len(agents) != 2 {
		t.Fatalf("expected exactly one offspring, got %d agents", len(agents))
	}
	child := agents[1]
	if child.Species != Prey || child.Energy != 100 {
		t.Fatalf("offspring must be fresh prey with 100 energy, got %+v", child)
	}
	if !m.grid.Contains(child.Position) {
		t.Fatalf("offspring out of bounds: %v", child.Position)
	}
	parentPos, _ := parent.Position()
	if child.Position == parentPos {
		t.Fatal("offspring should land on an empty cell")
	}
	if m.Births() != 1 {
		t.Fatalf("expected 1 birth, got %d", m.Births())
	}
	assertConsistent(t, m)
}

func TestPreyBelowThresholdDoesNotBreed(t *testing.T) {
	m := newEmptyModel(t, 3, 3, 2)
	a := addAgent(m, Prey, grid.Position{}, 199)
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if a.Energy != 198 || m.PopulationCounts().Prey != 1 {
		t.Fatalf("unexpected breed: energy=%d counts=%+v", a.Energy, m.PopulationCounts())
	}
}

func TestPredatorEatsOnePreyAtItsCell(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 5)
	predator := addAgent(m, Predator, grid.Position{}, 10)
	for i := 0; i < 3; i++ {
		addAgent(m, Prey, grid.Position{}, 100)
	}

	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.PopulationCounts(); got.Prey != 2 || got.Predators != 1 {
		t.Fatalf("expected exactly one prey eaten, got %+v", got)
	}
	if predator.Energy != 109 {
		t.Fatalf("expected predator energy 10+100-1=109, got %d", predator.Energy)
	}
	if m.Deaths() != 1 {
		t.Fatalf("expected 1 death, got %d", m.Deaths())
	}

	removed := 0
	for id := grid.ID(2); id <= 4; id++ {
		view, _ := m.Agent(id)
		if view.Removed {
			removed++
			if _, ok := m.grid.Locate(id); ok {
				t.Fatalf("eaten prey %d still on grid", id)
			}
			if m.schedule.Contains(id) {
				t.Fatalf("eaten prey %d still scheduled", id)
			}
		}
	}
	if removed != 1 {
		t.Fatalf("expected one removed prey, got %d", removed)
	}
	assertConsistent(t, m)
}

func TestPredatorWithoutPreyOnlyMetabolizes(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 5)
	predator := addAgent(m, Predator, grid.Position{}, 100)
	addAgent(m, Poacher, grid.Position{}, 2)
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if predator.Energy != 99 {
		t.Fatalf("expected 99, got %d", predator.Energy)
	}
}

func TestPredatorEatThenBreedOnFullGrid(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 6)
	predator := addAgent(m, Predator, grid.Position{}, 150)
	addAgent(m, Prey, grid.Position{}, 100)

	err := m.Step()
	if !errors.Is(err, ErrGridSaturated) {
		t.Fatalf("expected saturation signal, got %v", err)
	}
	if got := m.PopulationCounts(); got.Prey != 0 || got.Predators != 2 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if predator.Energy != 149 {
		t.Fatalf("expected 150+100-100-1=149, got %d", predator.Energy)
	}
	child, ok := m.Agent(3)
	if !ok || child.Species != Predator || child.Energy != 100 {
		t.Fatalf("unexpected offspring %+v", child)
	}
	assertConsistent(t, m)
}

func TestPoacherCullsPredator(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 8)
	poacher := addAgent(m, Poacher, grid.Position{}, 50)
	addAgent(m, Predator, grid.Position{}, 10)
	addAgent(m, Prey, grid.Position{}, 10)
	addAgent(m, Prey, grid.Position{}, 10)
	addAgent(m, Prey, grid.Position{}, 10)

	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	got := m.PopulationCounts()
	if got.Predators != 0 || got.Poachers != 1 {
		t.Fatalf("expected predator poached, got %+v", got)
	}
	if poacher.Energy != 44 {
		t.Fatalf("expected poacher energy 50-5-1=44, got %d", poacher.Energy)
	}
	assertConsistent(t, m)
}

func TestPoacherNeedsEnergyToPoach(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 8)
	poacher := addAgent(m, Poacher, grid.Position{}, 4)
	addAgent(m, Predator, grid.Position{}, 10)

	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.PopulationCounts(); got.Predators != 1 {
		t.Fatalf("poacher below minimum energy must not poach, got %+v", got)
	}
	if poacher.Energy != 3 {
		t.Fatalf("expected 3, got %d", poacher.Energy)
	}
}

func TestPoacherIgnoresPrey(t *testing.T) {
	m := newEmptyModel(t, 1, 1, 8)
	addAgent(m, Poacher, grid.Position{}, 50)
	addAgent(m, Prey, grid.Position{}, 100)
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.PopulationCounts(); got.Prey != 1 {
		t.Fatalf("poachers must not take prey, got %+v", got)
	}
}

func TestRemovedAgentActivationIsSkipped(t *testing.T) {
	m := newEmptyModel(t, 3, 3, 1)
	prey := addAgent(m, Prey, grid.Position{Row: 1, Col: 1}, 100)
	m.remove(prey)

	if err := m.activate(prey.ID); err != nil {
		t.Fatalf("activate removed agent: %v", err)
	}
	if prey.Energy != 100 {
		t.Fatalf("removed agent acted: energy %d", prey.Energy)
	}
	if _, ok := prey.Position(); ok {
		t.Fatal("removed agent still reports a position")
	}
	if m.Registered() != 1 {
		t.Fatalf("removed agent must stay registered, got %d", m.Registered())
	}
}

func TestAgentsNeverStarve(t *testing.T) {
	m := newEmptyModel(t, 3, 3, 1)
	a := addAgent(m, Poacher, grid.Position{}, 1)
	for i := 0; i < 5; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if a.Energy != -4 || a.Removed() {
		t.Fatalf("expected live poacher at -4 energy, got %d removed=%t", a.Energy, a.Removed())
	}
}

func TestGrazeIsNotPartOfThePreyRule(t *testing.T) {
	m := newEmptyModel(t, 2, 2, 1)
	prey := addAgent(m, Prey, grid.Position{}, 100)
	predator := addAgent(m, Predator, grid.Position{Row: 1, Col: 1}, 100)

	for i := 0; i < 10; i++ {
		before := prey.Energy
		if err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		if prey.Removed() {
			break
		}
		if prey.Energy != before-1 {
			t.Fatalf("prey energy must only decline, %d -> %d", before, prey.Energy)
		}
	}

	fresh := newEmptyModel(t, 2, 2, 1)
	p := addAgent(fresh, Prey, grid.Position{}, 100)
	if !fresh.Graze(p.ID) || p.Energy != 110 {
		t.Fatalf("graze should add 10 energy, got %d", p.Energy)
	}
	if m.Graze(predator.ID) {
		t.Fatal("only prey graze")
	}
	fresh.remove(p)
	if fresh.Graze(p.ID) {
		t.Fatal("removed prey cannot graze")
	}
}

func TestFirstTickScenario(t *testing.T) {
	m, err := New(Config{Height: 10, Width: 10, Prey: 20, Predators: 7, Poachers: 3, Seed: 2024})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	counts := m.PopulationCounts()
	if m.Registered() != 30+m.Births() {
		t.Fatalf("registry holds %d agents, want %d", m.Registered(), 30+m.Births())
	}
	if counts.Total()+m.Deaths() != 30+m.Births() {
		t.Fatalf("live %d + deaths %d must equal 30 + births %d", counts.Total(), m.Deaths(), m.Births())
	}
	if eaten := 20 - counts.Prey; m.Births() != eaten {
		t.Fatalf("every meal lifts a predator to the threshold on tick 1: %d eaten, %d births", eaten, m.Births())
	}
	if counts.Poachers != 3 {
		t.Fatalf("poachers are never removed, got %d", counts.Poachers)
	}
	for _, a := range m.Agents() {
		switch a.Species {
		case Prey:
			if a.Energy != 99 {
				t.Fatalf("prey %d energy %d, want 99", a.ID, a.Energy)
			}
		case Predator:
			// 99 after a plain tick or eat+breed; 100 for offspring born this tick.
			if a.Energy != 99 && !(a.ID > 30 && a.Energy == 100) {
				t.Fatalf("predator %d energy %d", a.ID, a.Energy)
			}
		case Poacher:
			if a.Energy != 49 && a.Energy != 44 {
				t.Fatalf("poacher %d energy %d, want 49 or 44", a.ID, a.Energy)
			}
		}
	}
	assertConsistent(t, m)
}

func TestSameSeedSameTrajectory(t *testing.T) {
	cfg := Config{Height: 8, Width: 8, Prey: 20, Predators: 7, Poachers: 3, Seed: 99}
	run := func() ([]Counts, []CellOccupancy) {
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("new model: %v", err)
		}
		var history []Counts
		for i := 0; i < 60; i++ {
			if err := m.Step(); err != nil && !errors.Is(err, ErrGridSaturated) {
				t.Fatalf("step: %v", err)
			}
			history = append(history, m.PopulationCounts())
		}
		return history, m.Occupancy()
	}

	h1, o1 := run()
	h2, o2 := run()
	if !reflect.DeepEqual(h1, h2) {
		t.Fatalf("population histories diverged:\n%v\n%v", h1, h2)
	}
	if !reflect.DeepEqual(o1, o2) {
		t.Fatal("final occupancy diverged")
	}
}

func TestInvariantsHoldOverManyTicks(t *testing.T) {
	m, err := New(Config{Height: 6, Width: 7, Prey: 25, Predators: 8, Poachers: 2, Seed: 17})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	for i := 0; i < 150; i++ {
		if err := m.Step(); err != nil && !errors.Is(err, ErrGridSaturated) {
			t.Fatalf("step %d: %v", i, err)
		}
		assertConsistent(t, m)
	}
}

// assertConsistent checks that the grid, the schedule and the registry agree.
func assertConsistent(t *testing.T, m *Model) {
	t.Helper()
	if m.grid.Len() != m.schedule.Len() {
		t.Fatalf("grid holds %d ids, schedule %d", m.grid.Len(), m.schedule.Len())
	}
	seen := make(map[grid.ID]bool)
	for _, id := range m.schedule.Active() {
		if seen[id] {
			t.Fatalf("id %d scheduled twice", id)
		}
		seen[id] = true
		a := m.agents[id]
		if a == nil || a.removed {
			t.Fatalf("scheduled id %d is missing or removed", id)
		}
		loc, ok := m.grid.Locate(id)
		if !ok || loc != a.pos {
			t.Fatalf("agent %d records %v, grid says %v (%t)", id, a.pos, loc, ok)
		}
		if !m.grid.Contains(loc) {
			t.Fatalf("agent %d out of bounds at %v", id, loc)
		}
	}
	for id, a := range m.agents {
		if a.removed {
			if _, ok := m.grid.Locate(id); ok {
				t.Fatalf("removed agent %d still on grid", id)
			}
			if m.schedule.Contains(id) {
				t.Fatalf("removed agent %d still scheduled", id)
			}
		}
	}
	members := 0
	for _, cell := range m.grid.Occupied() {
		members += len(cell.IDs)
	}
	if members != m.schedule.Len() {
		t.Fatalf("cells hold %d memberships for %d live agents", members, m.schedule.Len())
	}
}
