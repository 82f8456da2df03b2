package assetpack

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// OpenResult is the outcome of opening one path with OpenAll.
type OpenResult struct {
	Path      string
	Container *Container
	Err       error
}

// OpenAll opens paths concurrently, at most the configured number of workers
// at a time. Results are in path order; a file that fails to open reports
// its error in its result without affecting the others.
//
// OpenAll returns an error only when ctx is done, in which case every
// container already opened is closed.
func (r *Registry) OpenAll(ctx context.Context, paths []string) ([]OpenResult, error) {
	results := make([]OpenResult, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)

	for i, path := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := r.OpenFile(path)
			results[i] = OpenResult{Path: path, Container: c, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		_ = CloseAll(results) //nolint:errcheck // the context error takes precedence
		return nil, err
	}

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.log().Debug("open all finished", slog.Int("files", len(paths)), slog.Int("failed", failed))
	return results, nil
}

// OpenAll opens paths with the default registry.
func OpenAll(ctx context.Context, paths []string) ([]OpenResult, error) {
	return Default().OpenAll(ctx, paths)
}

// CloseAll closes every container in results.
func CloseAll(results []OpenResult) error {
	var errs []error
	for _, res := range results {
		if res.Container != nil {
			if err := res.Container.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
