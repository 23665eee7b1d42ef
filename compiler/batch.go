package compiler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Unit is one independent source file.
type Unit struct {
	Name   string
	Source []byte
}

// CompileAll compiles independent units concurrently, at most
// GOMAXPROCS at a time. Results are in the order of units. It fails only
// when ctx is cancelled; per-unit failures are reported in the results.
func CompileAll(ctx context.Context, units []Unit, target Target, opts Options) ([]Result, error) {
	results := make([]Result, len(units))
	semaphore := make(chan struct{}, runtime.GOMAXPROCS(0))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case semaphore <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-semaphore }()

			unitOpts := opts
			// Stage logs of concurrent units would interleave.
			unitOpts.Log = nil
			results[i] = Compile(u.Source, target, unitOpts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
