package ecology

// Params holds the interaction constants. Zero fields take the defaults from
// DefaultParams, so a partially filled Params is valid. A zero PoachCost,
// PoachMinEnergy or Metabolism therefore cannot be expressed.
type Params struct {
	PreyEnergy      int `json:"prey_energy"`
	PredatorEnergy  int `json:"predator_energy"`
	PoacherEnergy   int `json:"poacher_energy"`
	BreedThreshold  int `json:"breed_threshold"`
	BreedCost       int `json:"breed_cost"`
	OffspringEnergy int `json:"offspring_energy"`
	PredatorGain    int `json:"predator_gain"`
	PoachCost       int `json:"poach_cost"`
	PoachMinEnergy  int `json:"poach_min_energy"`
	Metabolism      int `json:"metabolism"`
	PreyGrazeGain   int `json:"prey_graze_gain"`
}

func DefaultParams() Params {
	return Params{
		PreyEnergy:      100,
		PredatorEnergy:  100,
		PoacherEnergy:   50,
		BreedThreshold:  200,
		BreedCost:       100,
		OffspringEnergy: 100,
		PredatorGain:    100,
		PoachCost:       5,
		PoachMinEnergy:  5,
		Metabolism:      1,
		PreyGrazeGain:   10,
	}
}

func (p Params) Normalized() Params {
	def := DefaultParams()
	fill := func(v *int, fallback int) {
		if *v == 0 {
			*v = fallback
		}
	}
	fill(&p.PreyEnergy, def.PreyEnergy)
	fill(&p.PredatorEnergy, def.PredatorEnergy)
	fill(&p.PoacherEnergy, def.PoacherEnergy)
	fill(&p.BreedThreshold, def.BreedThreshold)
	fill(&p.BreedCost, def.BreedCost)
	fill(&p.OffspringEnergy, def.OffspringEnergy)
	fill(&p.PredatorGain, def.PredatorGain)
	fill(&p.PoachCost, def.PoachCost)
	fill(&p.PoachMinEnergy, def.PoachMinEnergy)
	fill(&p.Metabolism, def.Metabolism)
	fill(&p.PreyGrazeGain, def.PreyGrazeGain)
	return p
}

func (p Params) initialEnergy(s Species) int {
	switch s {
	case Prey:
		return p.PreyEnergy
	case Predator:
		return p.PredatorEnergy
	case Poacher:
		return p.PoacherEnergy
	default:
		return 0
	}
}
