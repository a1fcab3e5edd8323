package ecology

import (
	"fmt"
	"strings"
)

type Species uint8

const (
	Prey Species = iota + 1
	Predator
	Poacher
)

// AllSpecies lists species in seeding order.
var AllSpecies = []Species{Prey, Predator, Poacher}

func (s Species) String() string {
	switch s {
	case Prey:
		return "prey"
	case Predator:
		return "predator"
	case Poacher:
		return "poacher"
	default:
		return fmt.Sprintf("species(%d)", uint8(s))
	}
}

func (s Species) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("unknown species %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Species) UnmarshalText(text []byte) error {
	parsed, err := ParseSpecies(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSpecies(name string) (Species, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "prey":
		return Prey, nil
	case "predator", "predators":
		return Predator, nil
	case "poacher", "poachers":
		return Poacher, nil
	default:
		return 0, fmt.Errorf("unknown species: %q", name)
	}
}

func (s Species) valid() bool {
	return s >= Prey && s <= Poacher
}

// Counts is a per-species population tally.
type Counts struct {
	Prey      int `json:"prey"`
	Predators int `json:"predators"`
	Poachers  int `json:"poachers"`
}

func (c Counts) Of(s Species) int {
	switch s {
	case Prey:
		return c.Prey
	case Predator:
		return c.Predators
	case Poacher:
		return c.Poachers
	default:
		return 0
	}
}

func (c Counts) Total() int {
	return c.Prey + c.Predators + c.Poachers
}

func (c *Counts) add(s Species, n int) {
	switch s {
	case Prey:
		c.Prey += n
	case Predator:
		c.Predators += n
	case Poacher:
		c.Poachers += n
	}
}
