/*

Parallel run orchestrator.

Each parameter set of the sweep becomes one run: a freshly built pool fed
through the strategy over the shared market series. Runs never share mutable
state, so workers are embarrassingly parallel; each writes its own slot of
the result slice, which keeps the output ordered by run index regardless of
scheduling.

*/

package orchestrator

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ammlabs/poolsim/internal/logger"
	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/strategy"
	"github.com/ammlabs/poolsim/internal/types"
)

var log = logger.GetForComponent("orchestrator")

// PoolFactory builds a fresh pool for one run with the given parameter
// overrides applied.
type PoolFactory func(params types.ParamSet) (pool.SimPool, error)

// Run executes one run per parameter set with at most workers in flight
// (zero means one per CPU). The first failing run cancels the rest. Results
// come back ordered by run index; parallel and sequential execution produce
// identical output.
func Run(
	ctx context.Context,
	factory PoolFactory,
	strat strategy.Strategy,
	paramSets []types.ParamSet,
	samples []types.PriceVolumeSample,
	workers int,
) ([]types.RunResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log.Info().
		Int("runs", len(paramSets)).
		Int("workers", workers).
		Int("timesteps", len(samples)).
		Msg("starting parameter sweep")

	results := make([]types.RunResult, len(paramSets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx, params := range paramSets {
		idx, params := idx, params
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := factory(params)
			if err != nil {
				return fmt.Errorf("run %d: build pool: %w", idx, err)
			}
			runLog, summary, err := strat.Run(p, params, samples)
			if err != nil {
				return fmt.Errorf("run %d (%s): %w", idx, params, err)
			}
			results[idx] = types.RunResult{
				RunIndex: idx,
				Params:   params,
				Log:      runLog,
				Summary:  summary,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info().Int("runs", len(results)).Msg("parameter sweep finished")
	return results, nil
}
