package optimizer

import (
	"errors"
	"fmt"

	"alertlab/internal/clock"
	"alertlab/internal/idhash"
	"alertlab/internal/policy"
)

var (
	// ErrTooManyConfigs is returned when a grid exceeds MaxConfigs without the override.
	ErrTooManyConfigs = errors.New("grid exceeds max configs")

	// ErrSpaceTooLarge is returned when the grid size does not fit in an int.
	ErrSpaceTooLarge = errors.New("parameter space too large")
)

// Config is one candidate configuration.
type Config struct {
	Index  int // position in evaluation order
	Key    string
	Hash   string
	Params Params
	Policy policy.Policy
	Err    error // template or policy validation failure; the config is skipped
}

// GridSearch enumerates the full cartesian product in index order.
// It never truncates: a grid larger than maxConfigs fails unless allowExceed is set.
// maxConfigs <= 0 means no ceiling.
func GridSearch(space ParameterSpace, tmpl Template, maxConfigs int, allowExceed bool) ([]Config, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	n, ok := space.Size()
	if !ok {
		return nil, ErrSpaceTooLarge
	}
	if maxConfigs > 0 && n > maxConfigs && !allowExceed {
		return nil, fmt.Errorf("%w: %d configs, max %d", ErrTooManyConfigs, n, maxConfigs)
	}

	configs := make([]Config, n)
	for i := range n {
		configs[i] = buildConfig(i, space.Point(i), tmpl)
	}
	return configs, nil
}

// RandomSearch draws maxConfigs distinct grid points uniformly. Points are returned in
// draw order. When the grid is no larger than maxConfigs it is returned in full, in grid order.
func RandomSearch(space ParameterSpace, tmpl Template, maxConfigs int, rng *clock.RNG) ([]Config, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if maxConfigs <= 0 {
		return nil, fmt.Errorf("random search: max configs must be positive, got %d", maxConfigs)
	}
	n, ok := space.Size()
	if !ok {
		return nil, ErrSpaceTooLarge
	}
	// Rejected duplicates draw from the clone, so the caller's stream always moves by one draw.
	draws := rng.Clone()
	if n <= maxConfigs {
		return GridSearch(space, tmpl, 0, true)
	}

	chosen := make(map[int]bool, maxConfigs)
	configs := make([]Config, 0, maxConfigs)
	for len(configs) < maxConfigs {
		idx := draws.NextInt(0, n)
		if chosen[idx] {
			continue
		}
		chosen[idx] = true
		configs = append(configs, buildConfig(len(configs), space.Point(idx), tmpl))
	}
	return configs, nil
}

func buildConfig(index int, params Params, tmpl Template) Config {
	cfg := Config{
		Index:  index,
		Key:    params.Key(),
		Params: params,
	}
	cfg.Hash = idhash.ComputeConfigHash(string(tmpl.Kind) + "|" + cfg.Key)

	p, err := tmpl.Build(params)
	if err == nil {
		err = p.Validate()
	}
	cfg.Policy = p
	cfg.Err = err
	return cfg
}
