package screener

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/filter"
)

// batchSize is how many records one evaluation goroutine handles.
const batchSize = 256

// Engine runs screens over record sets using a bounded number of goroutines.
type Engine struct {
	workers int
	metrics *Metrics
	logger  *zap.Logger
}

// NewEngine creates an engine. workers <= 0 uses GOMAXPROCS. metrics may be nil.
func NewEngine(workers int, metrics *Metrics, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

// Run parses raw configuration and screens records with it. Validation errors
// are returned as *filter.ValidationErrors before any record is evaluated.
func (e *Engine) Run(ctx context.Context, raw map[string]string, records []data.OptionRecord) (*Result, error) {
	spec, err := filter.Parse(raw)
	if err != nil {
		e.metrics.recordInvalid()
		e.logger.Warn("invalid filter configuration", zap.Error(err))
		return nil, err
	}
	return e.Screen(ctx, spec, records)
}

// Screen evaluates every record against spec, ranks the passing ones and
// returns them together with the rejected verdicts. The result is the same
// for any worker count.
func (e *Engine) Screen(ctx context.Context, spec *filter.Spec, records []data.OptionRecord) (*Result, error) {
	start := time.Now()
	verdicts := make([]Verdict, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for lo := 0; lo < len(records); lo += batchSize {
		if gctx.Err() != nil {
			break
		}
		lo, hi := lo, min(lo+batchSize, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				rec := &records[i]
				passed, failures := Evaluate(spec, rec)
				verdicts[i] = Verdict{Index: i, Record: rec, Passed: passed, Failures: failures}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.metrics.recordFailed()
		return nil, fmt.Errorf("screening canceled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		e.metrics.recordFailed()
		return nil, fmt.Errorf("screening canceled: %w", err)
	}

	res := &Result{Spec: spec, Evaluated: len(records)}
	var passing []Verdict
	for _, v := range verdicts {
		if v.Passed {
			passing = append(passing, v)
		} else {
			res.Rejected = append(res.Rejected, v)
		}
	}
	res.Passed = len(passing)
	res.Matches = Rank(passing, spec.Order(), spec.Limit())

	elapsed := time.Since(start)
	e.metrics.recordResult(res, elapsed)
	e.logger.Info("screen complete",
		zap.Int("evaluated", res.Evaluated),
		zap.Int("passed", res.Passed),
		zap.Int("returned", len(res.Matches)),
		zap.String("order_by", spec.Order().Token),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}
