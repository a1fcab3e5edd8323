package ecology

import (
	"errors"
	"math/rand"
	"slices"

	"ecosim/internal/grid"
)

// Scheduler is a random-activation schedule over the active set. Each Step
// snapshots the active ids, shuffles the snapshot and activates every entry
// exactly once. Ids added during a step wait for the next one; ids removed
// during a step are still visited, and the activation callback is expected to
// skip them.
type Scheduler struct {
	order  []grid.ID
	active map[grid.ID]struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{active: make(map[grid.ID]struct{})}
}

func (s *Scheduler) Add(id grid.ID) {
	if _, ok := s.active[id]; ok {
		return
	}
	s.active[id] = struct{}{}
	s.order = append(s.order, id)
}

// Remove drops id from the active set. Removing an inactive id is a no-op.
func (s *Scheduler) Remove(id grid.ID) bool {
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

func (s *Scheduler) Contains(id grid.ID) bool {
	_, ok := s.active[id]
	return ok
}

func (s *Scheduler) Len() int {
	return len(s.order)
}

// Active returns the active ids in insertion order.
func (s *Scheduler) Active() []grid.ID {
	return slices.Clone(s.order)
}

// Step activates a shuffled snapshot of the active set. Activation errors do
// not stop the step; they are joined and returned once every id has run.
func (s *Scheduler) Step(rng *rand.Rand, activate func(grid.ID) error) error {
	snapshot := slices.Clone(s.order)
	rng.Shuffle(len(snapshot), func(i, j int) {
		snapshot[i], snapshot[j] = snapshot[j], snapshot[i]
	})

	var errs []error
	for _, id := range snapshot {
		if err := activate(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
