package audit

import (
	"context"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// runPass runs contracts through orch, up to maxContracts at a time, and
// returns their aggregates in input order. All contracts share the
// orchestrator's pool. Contracts must already be validated.
func runPass(ctx context.Context, pass enrollment.Pass, orch *Orchestrator, contracts []enrollment.Contract, maxContracts int, logger zerolog.Logger) ([]enrollment.ContractAggregate, error) {
	start := time.Now()
	aggregates := make([]enrollment.ContractAggregate, len(contracts))

	var g errgroup.Group
	if maxContracts > 0 {
		g.SetLimit(maxContracts)
	}
	for i, c := range contracts {
		i, c := i, c
		g.Go(func() error {
			agg, err := orch.Run(ctx, pass, c)
			if err != nil {
				return err
			}
			aggregates[i] = agg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	passDurationSeconds.WithLabelValues(string(pass)).Observe(elapsed.Seconds())
	logger.Info().
		Str("pass", string(pass)).
		Int("contracts", len(contracts)).
		Dur("duration", elapsed).
		Msg("Total requests time")

	return aggregates, nil
}
