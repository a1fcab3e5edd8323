package ecology

import "ecosim/internal/grid"

// Agent is the shared record behind every species. Behavior is selected by
// Species through the rule table, not by the concrete type.
type Agent struct {
	ID      grid.ID
	Species Species
	Energy  int

	pos     grid.Position
	removed bool
}

// Position reports the agent's cell. The second result is false once the agent
// has been eaten or poached; removal is terminal.
func (a *Agent) Position() (grid.Position, bool) {
	if a.removed {
		return grid.Position{}, false
	}
	return a.pos, true
}

func (a *Agent) Removed() bool {
	return a.removed
}

// AgentView is a read-only copy of an agent.
type AgentView struct {
	ID       grid.ID       `json:"id"`
	Species  Species       `json:"species"`
	Energy   int           `json:"energy"`
	Position grid.Position `json:"position"`
	Removed  bool          `json:"removed"`
}

func (a *Agent) view() AgentView {
	return AgentView{
		ID:       a.ID,
		Species:  a.Species,
		Energy:   a.Energy,
		Position: a.pos,
		Removed:  a.removed,
	}
}
