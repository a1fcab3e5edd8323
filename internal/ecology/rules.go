package ecology

import "fmt"

type rule func(m *Model, a *Agent) error

var rules = map[Species]rule{
	Prey:     stepPrey,
	Predator: stepPredator,
	Poacher:  stepPoacher,
}

// Prey never grazes during its own turn; its energy only falls between
// breeds. See Model.Graze.
func stepPrey(m *Model, a *Agent) error {
	m.wander(a)
	err := m.breed(a)
	a.Energy -= m.params.Metabolism
	return err
}

func stepPredator(m *Model, a *Agent) error {
	m.wander(a)
	if victim := m.pickAtCell(a, Prey); victim != nil {
		m.remove(victim)
		a.Energy += m.params.PredatorGain
	}
	err := m.breed(a)
	a.Energy -= m.params.Metabolism
	return err
}

// Poachers pay to cull predators and never breed or gain energy.
func stepPoacher(m *Model, a *Agent) error {
	m.wander(a)
	if a.Energy >= m.params.PoachMinEnergy {
		if victim := m.pickAtCell(a, Predator); victim != nil {
			m.remove(victim)
			a.Energy -= m.params.PoachCost
		}
	}
	a.Energy -= m.params.Metabolism
	return nil
}

func (m *Model) wander(a *Agent) {
	candidates := m.grid.Neighbors(a.pos)
	next := candidates[m.rng.Intn(len(candidates))]
	pos, err := m.grid.Move(a.ID, next)
	if err != nil {
		// Active agents are always placed; reaching this is a bookkeeping bug.
		panic(fmt.Sprintf("ecology: %v", err))
	}
	a.pos = pos
}

// pickAtCell draws uniformly among agents of the given species sharing a's
// cell, or returns nil when there are none.
func (m *Model) pickAtCell(a *Agent, s Species) *Agent {
	var candidates []*Agent
	for _, id := range m.grid.Occupants(a.pos) {
		other := m.agents[id]
		if other == nil || other == a || other.removed || other.Species != s {
			continue
		}
		candidates = append(candidates, other)
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[m.rng.Intn(len(candidates))]
}

// breed spawns one offspring onto a random empty cell. When the grid has no
// empty cell left the offspring shares the least occupied cell and the
// returned error wraps ErrGridSaturated; the breed itself still happens.
func (m *Model) breed(parent *Agent) error {
	if parent.Energy < m.params.BreedThreshold {
		return nil
	}

	parent.Energy -= m.params.BreedCost
	child := m.spawn(parent.Species, parent.pos, m.params.OffspringEnergy)
	saturated, err := m.scatter(child)
	if err != nil {
		return err
	}
	m.schedule.Add(child.ID)
	m.births++
	if saturated {
		return fmt.Errorf("%s %d bred into a full grid at tick %d: %w", parent.Species, parent.ID, m.tick+1, ErrGridSaturated)
	}
	return nil
}

func (m *Model) remove(victim *Agent) {
	m.grid.Remove(victim.ID)
	m.schedule.Remove(victim.ID)
	victim.removed = true
	m.deaths++
}
