package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"ecosim/internal/ecology"
	"ecosim/internal/model"
)

const sweepsDir = "sweeps"

// SweepRun is one finished run of a sweep.
type SweepRun struct {
	RunID      string                 `json:"run_id"`
	Seed       int64                  `json:"seed"`
	TicksRun   int                    `json:"ticks_run"`
	StopReason string                 `json:"stop_reason"`
	Final      model.PopulationSample `json:"final"`
}

type SpeciesAggregate struct {
	Species   string  `json:"species"`
	MeanFinal float64 `json:"mean_final"`
	StdFinal  float64 `json:"std_final"`
	MinFinal  int     `json:"min_final"`
	MaxFinal  int     `json:"max_final"`
	Extinct   int     `json:"extinct"`
}

type SweepSummary struct {
	ID           string             `json:"id"`
	CreatedAtUTC string             `json:"created_at_utc"`
	Runs         []SweepRun         `json:"runs"`
	Species      []SpeciesAggregate `json:"species"`
}

// BuildSweepSummary aggregates final populations across runs. A species counts
// as extinct in a run when its final count is zero.
func BuildSweepSummary(id, createdAtUTC string, runs []SweepRun) SweepSummary {
	summary := SweepSummary{
		ID:           id,
		CreatedAtUTC: createdAtUTC,
		Runs:         append([]SweepRun(nil), runs...),
		Species:      make([]SpeciesAggregate, 0, len(ecology.AllSpecies)),
	}
	for _, s := range ecology.AllSpecies {
		finals := make([]int, 0, len(runs))
		extinct := 0
		for _, run := range runs {
			n := sampleCount(run.Final, s)
			finals = append(finals, n)
			if n == 0 {
				extinct++
			}
		}
		lo, hi := minMax(finals)
		summary.Species = append(summary.Species, SpeciesAggregate{
			Species:   s.String(),
			MeanFinal: mean(finals),
			StdFinal:  stddev(finals),
			MinFinal:  lo,
			MaxFinal:  hi,
			Extinct:   extinct,
		})
	}
	return summary
}

func WriteSweepSummary(baseDir string, summary SweepSummary) (string, error) {
	if summary.ID == "" {
		return "", fmt.Errorf("sweep id is required")
	}
	path := sweepSummaryPath(baseDir, summary.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(path, summary); err != nil {
		return "", err
	}
	return path, nil
}

func ReadSweepSummary(baseDir, id string) (SweepSummary, bool, error) {
	if id == "" {
		return SweepSummary{}, false, fmt.Errorf("sweep id is required")
	}
	var summary SweepSummary
	ok, err := readJSON(sweepSummaryPath(baseDir, id), &summary)
	if err != nil || !ok {
		return SweepSummary{}, ok, err
	}
	return summary, true, nil
}

func sweepSummaryPath(baseDir, id string) string {
	return filepath.Join(baseDir, sweepsDir, id+".json")
}
