package stats

import (
	"math"

	"golang.org/x/exp/constraints"

	"ecosim/internal/ecology"
	"ecosim/internal/model"
)

// SpeciesSummary describes one species over a population history.
// ExtinctAt is the first tick at which the species count reached zero after
// having been positive, or nil if that never happened.
type SpeciesSummary struct {
	Species   string `json:"species"`
	Initial   int    `json:"initial"`
	Final     int    `json:"final"`
	Peak      int    `json:"peak"`
	PeakTick  int    `json:"peak_tick"`
	ExtinctAt *int   `json:"extinct_at,omitempty"`
}

// SummarizeHistory reports per-species trajectory facts in species order.
func SummarizeHistory(history []model.PopulationSample) []SpeciesSummary {
	out := make([]SpeciesSummary, 0, len(ecology.AllSpecies))
	if len(history) == 0 {
		return out
	}
	for _, s := range ecology.AllSpecies {
		summary := SpeciesSummary{
			Species:  s.String(),
			Initial:  sampleCount(history[0], s),
			Final:    sampleCount(history[len(history)-1], s),
			Peak:     -1,
			PeakTick: 0,
		}
		alive := false
		for _, sample := range history {
			n := sampleCount(sample, s)
			if n > summary.Peak {
				summary.Peak = n
				summary.PeakTick = sample.Tick
			}
			if n > 0 {
				alive = true
			} else if alive && summary.ExtinctAt == nil {
				tick := sample.Tick
				summary.ExtinctAt = &tick
			}
		}
		out = append(out, summary)
	}
	return out
}

func sampleCount(sample model.PopulationSample, s ecology.Species) int {
	return ecology.Counts{Prey: sample.Prey, Predators: sample.Predators, Poachers: sample.Poachers}.Of(s)
}

func mean[T constraints.Integer | constraints.Float](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

func stddev[T constraints.Integer | constraints.Float](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var acc float64
	for _, v := range values {
		d := float64(v) - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

func minMax[T constraints.Ordered](values []T) (T, T) {
	var lo, hi T
	for i, v := range values {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}
