package grid

import (
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/exp/constraints"
)

var (
	ErrSaturated = errors.New("grid saturated: no empty cell")
	ErrNotPlaced = errors.New("agent is not on the grid")
)

// ID is the grid-side handle of an agent. The grid never owns agents, it only
// records which ids occupy which cell.
type ID int

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Placement selects how MoveToRandomEmpty behaves once every cell is occupied.
type Placement int

const (
	// EmptyOnly fails with ErrSaturated when no empty cell exists.
	EmptyOnly Placement = iota
	// LeastOccupied falls back to a uniformly chosen least-occupied cell.
	LeastOccupied
)

type Cell struct {
	Pos Position
	IDs []ID
}

// Grid is a toroidal multigrid: several ids may share a cell and every
// coordinate handed to it is wrapped modulo height and width.
type Grid struct {
	height int
	width  int

	cells    [][]ID
	where    map[ID]Position
	occupied int
}

func New(height, width int) *Grid {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return &Grid{
		height: height,
		width:  width,
		cells:  make([][]ID, height*width),
		where:  make(map[ID]Position),
	}
}

func (g *Grid) Height() int {
	return g.height
}

func (g *Grid) Width() int {
	return g.width
}

func (g *Grid) Capacity() int {
	return g.height * g.width
}

// Len reports how many ids are currently placed.
func (g *Grid) Len() int {
	return len(g.where)
}

// EmptyCells reports how many cells have no occupant.
func (g *Grid) EmptyCells() int {
	return g.Capacity() - g.occupied
}

func (g *Grid) Wrap(p Position) Position {
	return Position{Row: wrap(p.Row, g.height), Col: wrap(p.Col, g.width)}
}

func (g *Grid) Contains(p Position) bool {
	return p.Row >= 0 && p.Row < g.height && p.Col >= 0 && p.Col < g.width
}

// Place inserts id at the wrapped position. An id that is already on the grid
// is relocated instead, so an id is never a member of two cells.
func (g *Grid) Place(id ID, p Position) Position {
	if _, ok := g.where[id]; ok {
		g.detach(id)
	}
	p = g.Wrap(p)
	g.attach(id, p)
	return p
}

// Remove detaches id from its cell. It reports false when id was not placed.
func (g *Grid) Remove(id ID) bool {
	if _, ok := g.where[id]; !ok {
		return false
	}
	g.detach(id)
	return true
}

func (g *Grid) Move(id ID, p Position) (Position, error) {
	if _, ok := g.where[id]; !ok {
		return Position{}, fmt.Errorf("move %d: %w", id, ErrNotPlaced)
	}
	return g.Place(id, p), nil
}

// MoveToRandomEmpty relocates a placed id to a uniformly chosen empty cell.
// The id's own cell only counts as empty when nobody else is in it. When the
// grid is full the id stays where it was and, under EmptyOnly, ErrSaturated is
// returned.
func (g *Grid) MoveToRandomEmpty(id ID, rng *rand.Rand, policy Placement) (Position, error) {
	from, ok := g.where[id]
	if !ok {
		return Position{}, fmt.Errorf("move %d to empty cell: %w", id, ErrNotPlaced)
	}

	g.detach(id)
	candidates := g.emptyCells()
	if len(candidates) == 0 {
		if policy != LeastOccupied {
			g.attach(id, from)
			return from, fmt.Errorf("move %d to empty cell: %w", id, ErrSaturated)
		}
		candidates = g.leastOccupiedCells()
	}
	to := candidates[rng.Intn(len(candidates))]
	g.attach(id, to)
	return to, nil
}

// Neighbors returns the Moore neighborhood of p: eight wrapped coordinates,
// center excluded. On grids narrower than three cells the same cell can
// appear more than once, which keeps a uniform draw over eight candidates.
func (g *Grid) Neighbors(p Position) []Position {
	out := make([]Position, 0, 8)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			out = append(out, g.Wrap(Position{Row: p.Row + dr, Col: p.Col + dc}))
		}
	}
	return out
}

// Occupants returns a copy of the ids at exactly p, in insertion order.
func (g *Grid) Occupants(p Position) []ID {
	if g.Capacity() == 0 {
		return nil
	}
	cell := g.cells[g.index(g.Wrap(p))]
	out := make([]ID, len(cell))
	copy(out, cell)
	return out
}

func (g *Grid) Locate(id ID) (Position, bool) {
	p, ok := g.where[id]
	return p, ok
}

// Occupied lists non-empty cells in row-major order.
func (g *Grid) Occupied() []Cell {
	out := make([]Cell, 0, g.occupied)
	for i, cell := range g.cells {
		if len(cell) == 0 {
			continue
		}
		ids := make([]ID, len(cell))
		copy(ids, cell)
		out = append(out, Cell{Pos: g.position(i), IDs: ids})
	}
	return out
}

func (g *Grid) attach(id ID, p Position) {
	i := g.index(p)
	if len(g.cells[i]) == 0 {
		g.occupied++
	}
	g.cells[i] = append(g.cells[i], id)
	g.where[id] = p
}

func (g *Grid) detach(id ID) {
	p := g.where[id]
	i := g.index(p)
	cell := g.cells[i]
	for j, other := range cell {
		if other == id {
			g.cells[i] = append(cell[:j], cell[j+1:]...)
			break
		}
	}
	if len(g.cells[i]) == 0 {
		g.occupied--
	}
	delete(g.where, id)
}

func (g *Grid) emptyCells() []Position {
	out := make([]Position, 0, g.EmptyCells())
	for i, cell := range g.cells {
		if len(cell) == 0 {
			out = append(out, g.position(i))
		}
	}
	return out
}

func (g *Grid) leastOccupiedCells() []Position {
	least := -1
	var out []Position
	for i, cell := range g.cells {
		switch {
		case least < 0 || len(cell) < least:
			least = len(cell)
			out = append(out[:0], g.position(i))
		case len(cell) == least:
			out = append(out, g.position(i))
		}
	}
	return out
}

func (g *Grid) index(p Position) int {
	return p.Row*g.width + p.Col
}

func (g *Grid) position(i int) Position {
	return Position{Row: i / g.width, Col: i % g.width}
}

func wrap[T constraints.Integer](v, n T) T {
	if n <= 0 {
		return 0
	}
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
