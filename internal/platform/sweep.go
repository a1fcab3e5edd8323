package platform

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Sweep runs independent configurations with at most workers in flight and
// returns results in input order. Each model stays on its own goroutine. The
// first failure cancels the remaining runs.
func (r *Runner) Sweep(ctx context.Context, configs []RunConfig, workers int) ([]RunResult, error) {
	if workers <= 0 {
		workers = 1
	}
	seen := make(map[string]struct{}, len(configs))
	for i, cfg := range configs {
		if cfg.RunID == "" {
			continue
		}
		if _, dup := seen[cfg.RunID]; dup {
			return nil, fmt.Errorf("sweep config %d: duplicate run id %s", i, cfg.RunID)
		}
		seen[cfg.RunID] = struct{}{}
	}

	results := make([]RunResult, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			result, err := r.Run(gctx, cfg)
			if err != nil {
				return fmt.Errorf("sweep config %d (seed %d): %w", i, cfg.Seed, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SeedSweep repeats base once per seed, clearing any fixed run id.
func SeedSweep(base RunConfig, seeds []int64) []RunConfig {
	configs := make([]RunConfig, 0, len(seeds))
	for _, seed := range seeds {
		cfg := base
		cfg.RunID = ""
		cfg.Seed = seed
		cfg.Control = nil
		configs = append(configs, cfg)
	}
	return configs
}
