package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ecosim/pkg/ecosim"
)

// loadRunRequestFromConfig reads a JSON run config. Unknown keys are ignored;
// params may be given as a nested "params" object.
func loadRunRequestFromConfig(path string) (ecosim.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ecosim.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ecosim.RunRequest{}, fmt.Errorf("parse run config %s: %w", path, err)
	}

	var req ecosim.RunRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["height"]); ok {
		req.Height = v
	}
	if v, ok := asInt(raw["width"]); ok {
		req.Width = v
	}
	if v, ok := asInt(raw["prey"]); ok {
		req.Prey = v
	}
	if v, ok := asInt(raw["predators"]); ok {
		req.Predators = v
	}
	if v, ok := asInt(raw["poachers"]); ok {
		req.Poachers = v
	}
	if v, ok := asInt(raw["ticks"]); ok {
		req.Ticks = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["step_delay_ms"]); ok {
		req.StepDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := asBool(raw["stop_on_saturation"]); ok {
		req.StopOnSaturation = v
	}

	// A zero param means "use the default"; see ecology.Params.
	if params, ok := raw["params"].(map[string]any); ok {
		p := &req.Params
		for key, dst := range map[string]*int{
			"prey_energy":      &p.PreyEnergy,
			"predator_energy":  &p.PredatorEnergy,
			"poacher_energy":   &p.PoacherEnergy,
			"breed_threshold":  &p.BreedThreshold,
			"breed_cost":       &p.BreedCost,
			"offspring_energy": &p.OffspringEnergy,
			"predator_gain":    &p.PredatorGain,
			"poach_cost":       &p.PoachCost,
			"poach_min_energy": &p.PoachMinEnergy,
			"metabolism":       &p.Metabolism,
			"prey_graze_gain":  &p.PreyGrazeGain,
		} {
			if v, ok := asInt(params[key]); ok {
				*dst = v
			}
		}
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies explicitly set flags on top of a loaded config.
func overrideFromFlags(req *ecosim.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "height":
			req.Height = v.(int)
		case "width":
			req.Width = v.(int)
		case "prey":
			req.Prey = v.(int)
		case "predators":
			req.Predators = v.(int)
		case "poachers":
			req.Poachers = v.(int)
		case "ticks":
			req.Ticks = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "delay-ms":
			req.StepDelay = time.Duration(v.(int)) * time.Millisecond
		case "stop-on-saturation":
			req.StopOnSaturation = v.(bool)
		case "breed-threshold":
			req.Params.BreedThreshold = v.(int)
		case "predator-gain":
			req.Params.PredatorGain = v.(int)
		case "poach-cost":
			req.Params.PoachCost = v.(int)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

// parseSeeds accepts "1,2,5" or an inclusive range "1-10".
func parseSeeds(value string) ([]int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("sweep requires --seeds")
	}
	if lo, hi, ok := strings.Cut(value, "-"); ok && lo != "" {
		start, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed range %q: %w", value, err)
		}
		end, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed range %q: %w", value, err)
		}
		if end < start {
			return nil, fmt.Errorf("invalid seed range %q: end before start", value)
		}
		seeds := make([]int64, 0, end-start+1)
		for s := start; s <= end; s++ {
			seeds = append(seeds, s)
		}
		return seeds, nil
	}

	parts := strings.Split(value, ",")
	seeds := make([]int64, 0, len(parts))
	for _, part := range parts {
		s, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}
